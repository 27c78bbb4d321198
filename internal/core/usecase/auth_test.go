package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

type credentialStoreFake struct {
	creds map[string]domain.Credential
	err   error
}

func newCredentialStoreFake() *credentialStoreFake {
	return &credentialStoreFake{creds: map[string]domain.Credential{}}
}

func (f *credentialStoreFake) CreateCredential(_ context.Context, cred domain.Credential) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.creds[cred.Username]; ok {
		return domain.WrapError(domain.ErrDuplicateUsername, "create credential", errors.New(cred.Username))
	}
	f.creds[cred.Username] = cred
	return nil
}

func (f *credentialStoreFake) GetCredential(_ context.Context, username string) (*domain.Credential, error) {
	cred, ok := f.creds[username]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get credential", errors.New(username))
	}
	return &cred, nil
}

type hasherFake struct{}

func (hasherFake) Hash(password string) (string, error) { return "hash:" + password, nil }

func (hasherFake) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func TestRegisterTwiceReturnsDuplicate(t *testing.T) {
	store := newCredentialStoreFake()
	uc := NewAuthUseCase(store, hasherFake{})

	if _, err := uc.Register(context.Background(), "admin", "123"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := uc.Register(context.Background(), "admin", "456")
	if !domain.IsKind(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if store.creds["admin"].PasswordHash != "hash:123" {
		t.Fatalf("existing credential must not be overwritten, got %q", store.creds["admin"].PasswordHash)
	}
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	uc := NewAuthUseCase(newCredentialStoreFake(), hasherFake{})
	for _, tc := range []struct{ user, pass string }{{"", "x"}, {"  ", "x"}, {"user", ""}} {
		if _, err := uc.Register(context.Background(), tc.user, tc.pass); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", tc, err)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	store := newCredentialStoreFake()
	uc := NewAuthUseCase(store, hasherFake{})
	if _, err := uc.Register(context.Background(), "doctor", "secret"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cred, err := uc.Authenticate(context.Background(), "doctor", "secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if cred.Username != "doctor" {
		t.Fatalf("unexpected credential %+v", cred)
	}

	if _, err := uc.Authenticate(context.Background(), "doctor", "wrong"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
	if _, err := uc.Authenticate(context.Background(), "nobody", "secret"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
	if _, err := uc.Authenticate(context.Background(), "", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty credentials, got %v", err)
	}
}

func TestAuthenticateStoreFailureIsNotUnauthorized(t *testing.T) {
	store := newCredentialStoreFake()
	uc := NewAuthUseCase(&failingGetStore{store}, hasherFake{})
	_, err := uc.Authenticate(context.Background(), "doctor", "secret")
	if err == nil || domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

type failingGetStore struct{ *credentialStoreFake }

func (failingGetStore) GetCredential(context.Context, string) (*domain.Credential, error) {
	return nil, errors.New("db down")
}
