package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

// CreateCredential never overwrites an existing user.
func (s *Store) CreateCredential(ctx context.Context, cred domain.Credential) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, ?)`,
		cred.Username, cred.PasswordHash)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create credential rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrDuplicateUsername, "create credential", fmt.Errorf("username=%s", cred.Username))
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, username string) (*domain.Credential, error) {
	var cred domain.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash FROM users WHERE username = ?`, username).
		Scan(&cred.Username, &cred.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get credential", fmt.Errorf("username=%s", username))
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}
