package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

const ExpectedSchemaVersion = 2

type migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []migration{
	{
		Version:     1,
		Description: "users, patient id counter and patients",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS users (
					username TEXT PRIMARY KEY,
					password_hash TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS id_counter (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					issued_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS patients (
					patient_id TEXT PRIMARY KEY,
					seq INTEGER NOT NULL UNIQUE,
					owner_username TEXT NOT NULL,
					patient_name TEXT NOT NULL,
					notes TEXT NOT NULL DEFAULT '',
					image BLOB,
					classification TEXT NOT NULL,
					confidence REAL NOT NULL,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (owner_username) REFERENCES users(username)
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "owner listing index",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, `CREATE INDEX IF NOT EXISTS idx_patients_owner_seq ON patients(owner_username, seq)`)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var currentVersion int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("applied_migration", "version", m.Version, "description", m.Description)
	}

	var finalVersion int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}
