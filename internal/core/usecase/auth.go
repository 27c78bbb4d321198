package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type AuthUseCase struct {
	store  ports.CredentialStore
	hasher ports.PasswordHasher
}

func NewAuthUseCase(store ports.CredentialStore, hasher ports.PasswordHasher) *AuthUseCase {
	return &AuthUseCase{
		store:  store,
		hasher: hasher,
	}
}

func (uc *AuthUseCase) Register(ctx context.Context, username, password string) (*domain.Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("username and password cannot be empty"))
	}

	hash, err := uc.hasher.Hash(password)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", err)
	}

	cred := domain.Credential{Username: username, PasswordHash: hash}
	if err := uc.store.CreateCredential(ctx, cred); err != nil {
		if domain.IsKind(err, domain.ErrDuplicateUsername) {
			slog.WarnContext(ctx, "registration_conflict", "username", username)
			return nil, err
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}

	slog.InfoContext(ctx, "user_registered", "username", username)
	return &cred, nil
}

func (uc *AuthUseCase) Authenticate(ctx context.Context, username, password string) (*domain.Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "login", errors.New("username and password cannot be empty"))
	}

	cred, err := uc.store.GetCredential(ctx, username)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			slog.WarnContext(ctx, "login_unknown_user", "username", username)
			return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid username or password"))
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}

	if err := uc.hasher.Compare(cred.PasswordHash, password); err != nil {
		slog.WarnContext(ctx, "login_bad_password", "username", username)
		return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid username or password"))
	}

	return cred, nil
}
