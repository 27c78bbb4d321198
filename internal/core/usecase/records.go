package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type PatientRecordUseCase struct {
	store    ports.PatientRecordStore
	exporter ports.RecordExporter
	now      func() time.Time
}

func NewPatientRecordUseCase(store ports.PatientRecordStore, exporter ports.RecordExporter) *PatientRecordUseCase {
	return &PatientRecordUseCase{
		store:    store,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record stores the final result of a terminal workflow and marks the workflow as recorded.
func (uc *PatientRecordUseCase) Record(ctx context.Context, owner string, wf *domain.Workflow) (*domain.PatientRecord, error) {
	if wf == nil {
		return nil, domain.WrapError(domain.ErrPrecondition, "record patient", errors.New("no classification in progress"))
	}
	if !wf.Terminal() {
		return nil, domain.WrapError(domain.ErrPrecondition, "record patient", fmt.Errorf("classification is %s", wf.State))
	}
	if wf.RecordID != "" {
		return nil, domain.WrapError(domain.ErrPrecondition, "record patient", fmt.Errorf("already recorded as %s", wf.RecordID))
	}
	name := strings.TrimSpace(wf.PatientName)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record patient", errors.New("patient name is required"))
	}
	if strings.TrimSpace(owner) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "record patient", errors.New("owner is required"))
	}

	record := &domain.PatientRecord{
		OwnerUsername:  owner,
		PatientName:    name,
		Notes:          wf.Notes,
		Image:          wf.Image,
		Classification: wf.Final.Label,
		Confidence:     wf.Final.Confidence,
		CreatedAt:      uc.now(),
	}

	id, err := uc.store.SaveRecord(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("save patient record: %w", err)
	}
	record.PatientID = id
	wf.RecordID = id
	return record, nil
}

func (uc *PatientRecordUseCase) List(ctx context.Context, owner string) ([]domain.PatientRecord, error) {
	records, err := uc.store.ListRecords(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list patient records: %w", err)
	}
	return records, nil
}

// Get hides records of other owners behind ErrNotFound.
func (uc *PatientRecordUseCase) Get(ctx context.Context, owner, patientID string) (*domain.PatientRecord, error) {
	record, err := uc.store.GetRecord(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if record.OwnerUsername != owner {
		return nil, domain.WrapError(domain.ErrNotFound, "get patient record", fmt.Errorf("id=%s", patientID))
	}
	return record, nil
}

func (uc *PatientRecordUseCase) Export(ctx context.Context, owner string, w io.Writer) error {
	if uc.exporter == nil {
		return domain.WrapError(domain.ErrPrecondition, "export patient records", errors.New("no exporter configured"))
	}
	records, err := uc.List(ctx, owner)
	if err != nil {
		return err
	}
	if err := uc.exporter.Write(w, records); err != nil {
		return fmt.Errorf("export patient records: %w", err)
	}
	return nil
}

func (uc *PatientRecordUseCase) ExportContentType() string {
	if uc.exporter == nil {
		return "application/octet-stream"
	}
	return uc.exporter.ContentType()
}
