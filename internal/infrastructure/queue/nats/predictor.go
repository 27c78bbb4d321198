package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/resilience"
)

// Predictor forwards prediction requests to workers over NATS request/reply.
type Predictor struct {
	conn     *nats.Conn
	subject  string
	timeout  time.Duration
	executor *resilience.Executor
}

func NewPredictor(conn *nats.Conn, subject string, timeout time.Duration, executor *resilience.Executor) *Predictor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Predictor{
		conn:     conn,
		subject:  subject,
		timeout:  timeout,
		executor: executor,
	}
}

func VariantSubject(prefix string, variant domain.Variant) string {
	return prefix + "." + string(variant)
}

func (p *Predictor) Predict(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) ([]float32, error) {
	if tensor == nil {
		return nil, domain.WrapError(domain.ErrPredictionFailed, "nats predict", fmt.Errorf("nil tensor"))
	}

	var reply *nats.Msg
	call := func(callCtx context.Context) error {
		reqCtx, cancel := context.WithTimeout(callCtx, p.timeout)
		defer cancel()
		msg, err := p.conn.RequestMsgWithContext(reqCtx, encodeRequest(VariantSubject(p.subject, variant), variant, tensor))
		if err != nil {
			return fmt.Errorf("nats request: %w", err)
		}
		reply = msg
		return nil
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, "nats."+string(variant), call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTransportError(string(variant), err)
	}
	return decodeReply(variant, reply)
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{RecordFailure: false}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// wrapTransportError reports every transport failure as an unavailable model:
// no worker answered, so nothing was classified.
func wrapTransportError(variant string, err error) error {
	operation := "nats predict " + variant
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return domain.WrapError(domain.ErrModelUnavailable, operation, fmt.Errorf("no prediction worker is listening: %w", err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return domain.WrapError(domain.ErrModelUnavailable, operation, fmt.Errorf("prediction worker timed out: %w", err))
	default:
		return domain.WrapError(domain.ErrModelUnavailable, operation, err)
	}
}
