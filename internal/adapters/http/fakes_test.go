package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type authFake struct {
	mu    sync.Mutex
	users map[string]string
}

func newAuthFake() *authFake {
	return &authFake{users: map[string]string{"alice": "secret"}}
}

func (f *authFake) Register(_ context.Context, username, password string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if username == "" || password == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("username and password are required"))
	}
	if _, ok := f.users[username]; ok {
		return nil, domain.WrapError(domain.ErrDuplicateUsername, "register", fmt.Errorf("username %q", username))
	}
	f.users[username] = password
	return &domain.Credential{Username: username}, nil
}

func (f *authFake) Authenticate(_ context.Context, username, password string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pw, ok := f.users[username]; !ok || pw != password {
		return nil, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("invalid username or password"))
	}
	return &domain.Credential{Username: username}, nil
}

// workflowFake classifies by upload content: "normal" ends stage 1, anything else asks for confirmation.
type workflowFake struct {
	mu         sync.Mutex
	confirmErr error
	starts     int
	block      chan struct{}
}

func (f *workflowFake) Start(_ context.Context, req ports.StartClassification) (*domain.Workflow, error) {
	f.mu.Lock()
	f.starts++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if !req.Mode.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start classification", fmt.Errorf("unknown mode %q", req.Mode))
	}
	wf := &domain.Workflow{
		ID:          "wf-1",
		Mode:        req.Mode,
		PatientName: req.PatientName,
		Notes:       req.Notes,
		MimeType:    req.MimeType,
		Image:       req.Image,
	}
	if req.Mode == domain.ModeMulticlass {
		res := domain.ClassificationResult{Variant: domain.VariantMulticlass, Label: domain.LabelBacterial, Confidence: 0.91}
		wf.Final = &res
		wf.State = domain.StateDone
		return wf, nil
	}
	stage1 := domain.ClassificationResult{Variant: domain.VariantStage1, Label: domain.LabelPneumonia, Confidence: 0.88}
	if strings.Contains(string(req.Image), "normal") {
		stage1.Label = domain.LabelNormal
		wf.Stage1 = &stage1
		wf.Final = &stage1
		wf.State = domain.StateDone
		return wf, nil
	}
	wf.Stage1 = &stage1
	wf.Tensor = &domain.Tensor{Shape: []int64{1}, Data: []float32{1}}
	wf.State = domain.StateAwaitingConfirmation
	return wf, nil
}

func (f *workflowFake) Confirm(_ context.Context, wf *domain.Workflow) error {
	if !wf.AwaitingConfirmation() {
		return domain.WrapError(domain.ErrPrecondition, "confirm stage 2", errors.New("no classification awaiting confirmation"))
	}
	if f.confirmErr != nil {
		wf.LastError = f.confirmErr.Error()
		return f.confirmErr
	}
	res := domain.ClassificationResult{Variant: domain.VariantStage2, Label: domain.LabelViral, Confidence: 0.77}
	wf.Stage2 = &res
	wf.Final = &res
	wf.Tensor = nil
	wf.State = domain.StateDone
	return nil
}

type recordsFake struct {
	mu      sync.Mutex
	seq     int64
	records []domain.PatientRecord
}

func (f *recordsFake) Record(_ context.Context, owner string, wf *domain.Workflow) (*domain.PatientRecord, error) {
	if !wf.Terminal() {
		return nil, domain.WrapError(domain.ErrPrecondition, "record patient", errors.New("classification is not finished"))
	}
	if wf.RecordID != "" {
		return nil, domain.WrapError(domain.ErrPrecondition, "record patient", errors.New("already recorded"))
	}
	if wf.PatientName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record patient", errors.New("patient name is required"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec := domain.PatientRecord{
		PatientID:      domain.FormatPatientID(f.seq),
		OwnerUsername:  owner,
		PatientName:    wf.PatientName,
		Notes:          wf.Notes,
		Image:          wf.Image,
		Classification: wf.Final.Label,
		Confidence:     wf.Final.Confidence,
		CreatedAt:      time.Now().UTC(),
	}
	f.records = append(f.records, rec)
	wf.RecordID = rec.PatientID
	return &rec, nil
}

func (f *recordsFake) List(_ context.Context, owner string) ([]domain.PatientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PatientRecord
	for _, rec := range f.records {
		if rec.OwnerUsername == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *recordsFake) Get(_ context.Context, owner, patientID string) (*domain.PatientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.PatientID == patientID && rec.OwnerUsername == owner {
			out := rec
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get patient record", fmt.Errorf("id=%s", patientID))
}

func (f *recordsFake) Export(ctx context.Context, owner string, w io.Writer) error {
	records, _ := f.List(ctx, owner)
	for _, rec := range records {
		if _, err := fmt.Fprintln(w, rec.PatientID); err != nil {
			return err
		}
	}
	return nil
}

func (f *recordsFake) ExportContentType() string {
	return "text/plain"
}

type sessionsFake struct {
	mu       sync.Mutex
	next     int
	sessions map[string]*domain.Session
}

func newSessionsFake() *sessionsFake {
	return &sessionsFake{sessions: map[string]*domain.Session{}}
}

func (f *sessionsFake) Create(_ context.Context, username string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	sess := &domain.Session{ID: fmt.Sprintf("sess-%d", f.next), Username: username}
	f.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

func (f *sessionsFake) Get(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnauthorized, "load session", errors.New("session expired"))
	}
	out := *sess
	if sess.Workflow != nil {
		wf := *sess.Workflow
		out.Workflow = &wf
	}
	return &out, nil
}

func (f *sessionsFake) Update(_ context.Context, id string, fn func(*domain.Session) error) error {
	f.mu.Lock()
	sess, ok := f.sessions[id]
	f.mu.Unlock()
	if !ok {
		return domain.WrapError(domain.ErrUnauthorized, "load session", errors.New("session expired"))
	}
	return fn(sess)
}

func (f *sessionsFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func errors503() error {
	return errors.New("tf serving returned 503")
}
