package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference/onnx"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference/tfserving"
	natsqueue "github.com/kirillkom/pneumonia-classifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/resilience"
)

// BreakerObserver is told about predictor circuit breaker transitions.
type BreakerObserver interface {
	SetBreakerState(operation, state string)
}

func ResilienceConfig(cfg config.Config, observer BreakerObserver) resilience.Config {
	out := resilience.Config{
		Enabled:          cfg.BreakerEnabled,
		MinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		FailureRatio:     cfg.BreakerFailureRatio,
		OpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSecs) * time.Second,
		HalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
	if observer != nil {
		out.OnStateChange = observer.SetBreakerState
	}
	return out
}

// LoadManifest reads the model manifest. A missing manifest falls back to
// <variant>.onnx files next to the configured path. IMAGE_SIZE applies unless
// the manifest sets image_size itself.
func LoadManifest(cfg config.Config) (*inference.Manifest, error) {
	manifest, err := inference.LoadManifest(cfg.ModelManifest, cfg.ImageSize)
	if err == nil {
		return manifest, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	dir := filepath.Dir(cfg.ModelManifest)
	slog.Warn("model_manifest_missing", "path", cfg.ModelManifest, "model_dir", dir)
	return inference.DefaultManifest(dir, cfg.ImageSize), nil
}

// PredictorMetrics records prediction outcomes and breaker transitions.
type PredictorMetrics interface {
	inference.PredictionRecorder
	BreakerObserver
}

// NewPredictor builds the configured prediction backend wrapped with metrics
// and logs. m may be nil. The returned close function releases the backend.
func NewPredictor(
	cfg config.Config,
	manifest *inference.Manifest,
	m PredictorMetrics,
	service string,
) (ports.Predictor, func(), error) {
	var (
		recorder inference.PredictionRecorder
		observer BreakerObserver
	)
	if m != nil {
		recorder, observer = m, m
	}
	backend, closeFn, err := newBackend(cfg, manifest, observer, service)
	if err != nil {
		return nil, nil, err
	}
	return inference.NewInstrumented(backend, recorder, service, cfg.PredictorBackend), closeFn, nil
}

func newBackend(cfg config.Config, manifest *inference.Manifest, observer BreakerObserver, service string) (ports.Predictor, func(), error) {
	switch cfg.PredictorBackend {
	case config.BackendONNX, "":
		runtime := onnx.NewRuntime(manifest, cfg.ONNXLibraryPath)
		return runtime, runtime.Close, nil
	case config.BackendTFServing:
		executor := resilience.NewExecutor(ResilienceConfig(cfg, observer))
		client := tfserving.New(cfg.TFServingURL, manifest, cfg.PredictTimeout(), executor)
		return client, func() {}, nil
	case config.BackendNATS:
		conn, err := natsqueue.Connect(cfg.NATSURL, natsqueue.Options{Name: "pneumonia-" + service})
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		executor := resilience.NewExecutor(ResilienceConfig(cfg, observer))
		predictor := natsqueue.NewPredictor(conn, cfg.NATSPredictSubject, cfg.PredictTimeout(), executor)
		return predictor, conn.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown predictor backend %q", cfg.PredictorBackend)
	}
}
