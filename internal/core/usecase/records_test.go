package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type recordStoreFake struct {
	saved []domain.PatientRecord
	next  int64
	err   error
}

func (f *recordStoreFake) SaveRecord(_ context.Context, record *domain.PatientRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.next++
	id := domain.FormatPatientID(f.next)
	copyRecord := *record
	copyRecord.PatientID = id
	f.saved = append(f.saved, copyRecord)
	return id, nil
}

func (f *recordStoreFake) ListRecords(_ context.Context, owner string) ([]domain.PatientRecord, error) {
	out := make([]domain.PatientRecord, 0)
	for _, r := range f.saved {
		if r.OwnerUsername == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *recordStoreFake) GetRecord(_ context.Context, id string) (*domain.PatientRecord, error) {
	for _, r := range f.saved {
		if r.PatientID == id {
			copyRecord := r
			return &copyRecord, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get record", errors.New(id))
}

type exporterFake struct {
	records []domain.PatientRecord
}

func (f *exporterFake) ContentType() string { return "text/plain" }

func (f *exporterFake) Write(w io.Writer, records []domain.PatientRecord) error {
	f.records = records
	_, err := io.WriteString(w, "ok")
	return err
}

func TestRecordStoresFinalStageResult(t *testing.T) {
	pred := &predictorFake{outputs: map[domain.Variant][]float32{
		domain.VariantStage1: {0.09, 0.91},
		domain.VariantStage2: {0.23, 0.77},
	}}
	classify := NewClassificationUseCase(&preprocessorFake{}, pred)
	store := &recordStoreFake{}
	records := NewPatientRecordUseCase(store, nil)

	wf, err := classify.Start(context.Background(), ports.StartClassification{
		Mode:        domain.ModeStaged,
		Image:       []byte("xray"),
		PatientName: "Jane",
		Notes:       "follow-up",
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := records.Record(context.Background(), "doctor", wf); !domain.IsKind(err, domain.ErrPrecondition) {
		t.Fatalf("recording a suspended workflow must fail, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("stage-1 result must never be stored")
	}

	if err := classify.Confirm(context.Background(), wf); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	record, err := records.Record(context.Background(), "doctor", wf)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if record.Classification != domain.LabelViral {
		t.Fatalf("expected Viral, got %s", record.Classification)
	}
	if record.Confidence < 0.769 || record.Confidence > 0.771 {
		t.Fatalf("expected confidence 0.77, got %v", record.Confidence)
	}
	if record.PatientID != "PT001" || wf.RecordID != "PT001" {
		t.Fatalf("expected PT001, got record=%s wf=%s", record.PatientID, wf.RecordID)
	}
	if !bytes.Equal(store.saved[0].Image, []byte("xray")) || store.saved[0].Notes != "follow-up" {
		t.Fatalf("unexpected stored record %+v", store.saved[0])
	}
}

func TestRecordNormalStagedResult(t *testing.T) {
	pred := &predictorFake{outputs: map[domain.Variant][]float32{domain.VariantStage1: {0.6, 0.4}}}
	classify := NewClassificationUseCase(&preprocessorFake{}, pred)
	store := &recordStoreFake{}
	records := NewPatientRecordUseCase(store, nil)

	wf := startStaged(t, classify)
	record, err := records.Record(context.Background(), "doctor", wf)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if record.Classification != domain.LabelNormal {
		t.Fatalf("expected Normal, got %s", record.Classification)
	}
}

func TestRecordWithheldWithoutPatientName(t *testing.T) {
	store := &recordStoreFake{}
	records := NewPatientRecordUseCase(store, nil)
	wf := &domain.Workflow{
		State:       domain.StateDone,
		PatientName: "   ",
		Final:       &domain.ClassificationResult{Label: domain.LabelNormal, Confidence: 0.9},
	}

	if _, err := records.Record(context.Background(), "doctor", wf); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("save must be withheld")
	}
}

func TestRecordTwiceIsRejected(t *testing.T) {
	store := &recordStoreFake{}
	records := NewPatientRecordUseCase(store, nil)
	wf := &domain.Workflow{
		State:       domain.StateDone,
		PatientName: "Jane",
		Final:       &domain.ClassificationResult{Label: domain.LabelBacterial, Confidence: 0.6},
	}

	if _, err := records.Record(context.Background(), "doctor", wf); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, err := records.Record(context.Background(), "doctor", wf); !domain.IsKind(err, domain.ErrPrecondition) {
		t.Fatalf("expected precondition error on second record, got %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one stored record, got %d", len(store.saved))
	}
}

func TestGetHidesOtherOwnersRecords(t *testing.T) {
	store := &recordStoreFake{}
	records := NewPatientRecordUseCase(store, nil)
	wf := &domain.Workflow{
		State:       domain.StateDone,
		PatientName: "Jane",
		Final:       &domain.ClassificationResult{Label: domain.LabelNormal, Confidence: 0.8},
	}
	rec, err := records.Record(context.Background(), "alice", wf)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if _, err := records.Get(context.Background(), "bob", rec.PatientID); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	got, err := records.Get(context.Background(), "alice", rec.PatientID)
	if err != nil || got.PatientName != "Jane" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
}

func TestExportWritesOwnerRecords(t *testing.T) {
	store := &recordStoreFake{saved: []domain.PatientRecord{
		{PatientID: "PT001", OwnerUsername: "alice"},
		{PatientID: "PT002", OwnerUsername: "bob"},
	}}
	exporter := &exporterFake{}
	records := NewPatientRecordUseCase(store, exporter)

	var buf strings.Builder
	if err := records.Export(context.Background(), "alice", &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(exporter.records) != 1 || exporter.records[0].PatientID != "PT001" {
		t.Fatalf("unexpected exported records %+v", exporter.records)
	}
	if records.ExportContentType() != "text/plain" {
		t.Fatalf("unexpected content type %s", records.ExportContentType())
	}
}
