package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/pneumonia-classifier/internal/infrastructure/repository/sqlite"
)

// Stores bundles the persistent credential and patient stores of one driver.
type Stores struct {
	Credentials ports.CredentialStore
	Patients    ports.PatientRecordStore

	closeFn func() error
}

func (s *Stores) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// OpenStores opens the configured store and brings its schema up to date.
func OpenStores(ctx context.Context, cfg config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite, "":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &Stores{
			Credentials: store,
			Patients:    store,
			closeFn:     store.Close,
		}, nil
	case config.StoreDriverPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &Stores{
			Credentials: postgres.NewCredentialRepository(db),
			Patients:    postgres.NewPatientRepository(db),
			closeFn:     db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
