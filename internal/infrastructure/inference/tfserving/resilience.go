package tfserving

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "tfserving status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("tfserving %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("tfserving %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func classifyServingError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{RecordFailure: false}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{RecordFailure: backendUnhealthy(statusErr.StatusCode)}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func backendUnhealthy(statusCode int) bool {
	switch statusCode {
	case http.StatusNotFound, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return statusCode >= 500
	}
}

// wrapPredictError separates an unreachable or missing model from a model that
// answered with an error.
func wrapPredictError(variant string, err error) error {
	operation := "tfserving predict " + variant
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrModelUnavailable, operation, err)
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrModelUnavailable, operation, err)
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if backendUnhealthy(statusErr.StatusCode) {
			return domain.WrapError(domain.ErrModelUnavailable, operation, err)
		}
		return domain.WrapError(domain.ErrPredictionFailed, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrModelUnavailable, operation, err)
	}
	return domain.WrapError(domain.ErrPredictionFailed, operation, err)
}
