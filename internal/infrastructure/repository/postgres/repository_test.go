package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func TestCreateCredentialConflictIsDuplicate(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO users").
		WithArgs("admin", "hash-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewCredentialRepository(db).CreateCredential(context.Background(), domain.Credential{Username: "admin", PasswordHash: "hash-2"})
	if !domain.IsKind(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetCredentialReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("FROM users").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewCredentialRepository(db).GetCredential(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRecordFormatsSequenceValue(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO patients").
		WithArgs("PT007", int64(7), "doctor", "Jane", "notes", []byte("img"), "Viral", 0.77, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := NewPatientRepository(db).SaveRecord(context.Background(), &domain.PatientRecord{
		OwnerUsername:  "doctor",
		PatientName:    "Jane",
		Notes:          "notes",
		Image:          []byte("img"),
		Classification: domain.LabelViral,
		Confidence:     0.77,
		CreatedAt:      now,
	})
	if err != nil {
		t.Fatalf("SaveRecord() error = %v", err)
	}
	if id != "PT007" {
		t.Fatalf("expected PT007, got %s", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRecordRollsBackOnInsertFailure(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT nextval").
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(8)))
	mock.ExpectExec("INSERT INTO patients").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if _, err := NewPatientRepository(db).SaveRecord(context.Background(), &domain.PatientRecord{OwnerUsername: "doctor"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecordsOrdersBySequence(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"patient_id", "owner_username", "patient_name", "notes", "classification", "confidence", "created_at"}).
		AddRow("PT001", "doctor", "Jane", "", "Normal", 0.9, now).
		AddRow("PT002", "doctor", "John", "cough", "Bacterial", 0.6, now)
	mock.ExpectQuery("ORDER BY seq ASC").
		WithArgs("doctor").
		WillReturnRows(rows)

	records, err := NewPatientRepository(db).ListRecords(context.Background(), "doctor")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].PatientID != "PT002" || records[1].Classification != domain.LabelBacterial {
		t.Fatalf("unexpected records %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRecordReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery("FROM patients").
		WithArgs("PT404").
		WillReturnError(sql.ErrNoRows)

	_, err := NewPatientRepository(db).GetRecord(context.Background(), "PT404")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
