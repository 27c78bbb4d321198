package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/bootstrap"
	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/inference/onnx"
	natsqueue "github.com/kirillkom/pneumonia-classifier/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/logging"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/metrics"
)

// The worker serves predictions over NATS from local ONNX models, so the API
// can run with PREDICTOR_BACKEND=nats on machines without the runtime.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manifest, err := bootstrap.LoadManifest(cfg)
	if err != nil {
		logger.Error("load_manifest_failed", "error", err)
		os.Exit(1)
	}
	runtime := onnx.NewRuntime(manifest, cfg.ONNXLibraryPath)
	defer runtime.Close()

	conn, err := natsqueue.Connect(cfg.NATSURL, natsqueue.Options{Name: "pneumonia-worker", WaitForServer: true})
	if err != nil {
		logger.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_failed", "error", err)
		}
	}()

	server := natsqueue.NewServer(conn, cfg.NATSPredictSubject, runtime, workerMetrics, "worker")
	if err := server.Serve(ctx); err != nil {
		logger.Error("worker_serve_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info("worker_stopped", "loaded_models", len(runtime.Loaded()))
}
