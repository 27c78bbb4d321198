package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

// CredentialStore persists username/password-hash pairs. Create never overwrites.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred domain.Credential) error
	GetCredential(ctx context.Context, username string) (*domain.Credential, error)
}

// PatientRecordStore appends patient records and generates their identifiers.
type PatientRecordStore interface {
	SaveRecord(ctx context.Context, record *domain.PatientRecord) (string, error)
	ListRecords(ctx context.Context, owner string) ([]domain.PatientRecord, error)
	GetRecord(ctx context.Context, patientID string) (*domain.PatientRecord, error)
}

// ImagePreprocessor turns uploaded bytes into the model input tensor.
type ImagePreprocessor interface {
	Preprocess(raw []byte) (*domain.Tensor, error)
}

// Predictor returns the probability vector of a model variant for a tensor.
type Predictor interface {
	Predict(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) ([]float32, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// SessionStore keeps per-session interaction state between requests.
type SessionStore interface {
	Create(ctx context.Context, username string) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, id string, fn func(*domain.Session) error) error
	Delete(ctx context.Context, id string) error
}

// RecordExporter writes patient records in a downloadable document format.
type RecordExporter interface {
	ContentType() string
	Write(w io.Writer, records []domain.PatientRecord) error
}
