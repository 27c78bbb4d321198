package ports

import (
	"context"
	"io"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

// Authenticator is the inbound contract for registration and login.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*domain.Credential, error)
	Authenticate(ctx context.Context, username, password string) (*domain.Credential, error)
}

// StartClassification carries one upload into the workflow.
type StartClassification struct {
	Mode        domain.Mode
	Image       []byte
	MimeType    string
	PatientName string
	Notes       string
}

// ClassificationWorkflow runs the single-call or staged classification path.
type ClassificationWorkflow interface {
	Start(ctx context.Context, req StartClassification) (*domain.Workflow, error)
	Confirm(ctx context.Context, wf *domain.Workflow) error
}

// PatientRecorder records terminal workflows and reads them back for their owner.
type PatientRecorder interface {
	Record(ctx context.Context, owner string, wf *domain.Workflow) (*domain.PatientRecord, error)
	List(ctx context.Context, owner string) ([]domain.PatientRecord, error)
	Get(ctx context.Context, owner, patientID string) (*domain.PatientRecord, error)
	Export(ctx context.Context, owner string, w io.Writer) error
	ExportContentType() string
}
