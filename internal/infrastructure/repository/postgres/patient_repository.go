package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// SaveRecord draws the next patient number from patient_id_seq. Sequence values
// are never handed out twice, even when the insert is rolled back.
func (r *PatientRepository) SaveRecord(ctx context.Context, record *domain.PatientRecord) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save patient tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('patient_id_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next patient id: %w", err)
	}
	patientID := domain.FormatPatientID(seq)

	_, err = tx.ExecContext(ctx, `
INSERT INTO patients (patient_id, seq, owner_username, patient_name, notes, image, classification, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, patientID, seq, record.OwnerUsername, record.PatientName, record.Notes, record.Image,
		string(record.Classification), record.Confidence, record.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert patient: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save patient tx: %w", err)
	}
	return patientID, nil
}

// ListRecords returns the owner's records in creation order, without image bytes.
func (r *PatientRepository) ListRecords(ctx context.Context, owner string) ([]domain.PatientRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT patient_id, owner_username, patient_name, notes, classification, confidence, created_at
FROM patients
WHERE owner_username = $1
ORDER BY seq ASC
`, owner)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PatientRecord, 0)
	for rows.Next() {
		var rec domain.PatientRecord
		var label string
		if err := rows.Scan(&rec.PatientID, &rec.OwnerUsername, &rec.PatientName, &rec.Notes, &label, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		rec.Classification = domain.Label(label)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

func (r *PatientRepository) GetRecord(ctx context.Context, patientID string) (*domain.PatientRecord, error) {
	var rec domain.PatientRecord
	var label string
	err := r.db.QueryRowContext(ctx, `
SELECT patient_id, owner_username, patient_name, notes, image, classification, confidence, created_at
FROM patients
WHERE patient_id = $1
`, patientID).Scan(&rec.PatientID, &rec.OwnerUsername, &rec.PatientName, &rec.Notes, &rec.Image, &label, &rec.Confidence, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get patient", fmt.Errorf("id=%s", patientID))
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	rec.Classification = domain.Label(label)
	return &rec, nil
}
