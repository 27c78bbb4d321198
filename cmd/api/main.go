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

	httpadapter "github.com/kirillkom/pneumonia-classifier/internal/adapters/http"
	"github.com/kirillkom/pneumonia-classifier/internal/bootstrap"
	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.Sessions.RunJanitor(ctx, time.Minute, app.Metrics.SetActiveSessions)

	router := httpadapter.NewRouter(
		cfg,
		app.AuthUC,
		app.ClassifyUC,
		app.RecordsUC,
		app.Sessions,
		app.Metrics,
	).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Model calls are bounded by the predictor timeout, plus the queue wait.
		WriteTimeout: cfg.PredictTimeout()*2 + cfg.ClassifyQueueTimeout() + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening",
			"port", cfg.APIPort,
			"store_driver", cfg.StoreDriver,
			"predictor_backend", cfg.PredictorBackend,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
