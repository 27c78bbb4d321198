package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/core/usecase"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/imaging"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/security"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/session/memory"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Stores   *Stores
	Sessions *memory.Store
	Metrics  *metrics.HTTPServerMetrics

	AuthUC     *usecase.AuthUseCase
	ClassifyUC *usecase.ClassificationUseCase
	RecordsUC  *usecase.PatientRecordUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	manifest, err := LoadManifest(cfg)
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("load model manifest: %w", err)
	}

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	predictor, closePredictor, err := NewPredictor(cfg, manifest, serverMetrics, "api")
	if err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("init predictor: %w", err)
	}

	preprocessor := imaging.NewPreprocessor(manifest.ImageSize)
	hasher := security.NewBcryptHasher(cfg.BcryptCost)

	return &App{
		Config:   cfg,
		Stores:   stores,
		Sessions: memory.NewStore(cfg.SessionIdleTimeout()),
		Metrics:  serverMetrics,

		AuthUC:     usecase.NewAuthUseCase(stores.Credentials, hasher),
		ClassifyUC: usecase.NewClassificationUseCase(preprocessor, predictor),
		RecordsUC:  usecase.NewPatientRecordUseCase(stores.Patients, xlsx.NewExporter()),

		closeFn: func() {
			closePredictor()
			_ = stores.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
