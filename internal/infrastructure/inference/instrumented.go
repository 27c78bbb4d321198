package inference

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type PredictionRecorder interface {
	RecordPrediction(service, variant, outcome string, duration time.Duration)
}

// Instrumented wraps a predictor with per-variant metrics and logs.
type Instrumented struct {
	next     ports.Predictor
	recorder PredictionRecorder
	service  string
	backend  string
}

func NewInstrumented(next ports.Predictor, recorder PredictionRecorder, service, backend string) *Instrumented {
	return &Instrumented{
		next:     next,
		recorder: recorder,
		service:  service,
		backend:  backend,
	}
}

func (p *Instrumented) Predict(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) ([]float32, error) {
	start := time.Now()
	probs, err := p.next.Predict(ctx, variant, tensor)
	duration := time.Since(start)

	outcome := Outcome(err)
	if p.recorder != nil {
		p.recorder.RecordPrediction(p.service, string(variant), outcome, duration)
	}
	if err != nil {
		slog.Warn("prediction_failed",
			"backend", p.backend,
			"variant", variant,
			"outcome", outcome,
			"duration_ms", float64(duration.Microseconds())/1000.0,
			"error", err,
		)
		return nil, err
	}
	slog.Debug("prediction_done",
		"backend", p.backend,
		"variant", variant,
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)
	return probs, nil
}

// Outcome names the metric bucket of a prediction error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsKind(err, domain.ErrModelUnavailable):
		return "model_unavailable"
	case domain.IsKind(err, context.DeadlineExceeded):
		return "timeout"
	case domain.IsKind(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
