package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidImage):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateUsername), domain.IsKind(err, domain.ErrPrecondition):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrModelUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrPredictionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// userMessage picks the text shown to the user. Typed failures carry their own
// context; anything else is reported generically and logged in full.
func userMessage(err error) string {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrInvalidImage,
		domain.ErrUnauthorized,
		domain.ErrNotFound,
		domain.ErrDuplicateUsername,
		domain.ErrPrecondition,
		domain.ErrModelUnavailable,
		domain.ErrPredictionFailed,
		domain.ErrTemporary,
	} {
		if errors.Is(err, kind) {
			return err.Error()
		}
	}
	return "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": userMessage(err)})
}
