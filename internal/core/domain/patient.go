package domain

import (
	"fmt"
	"time"
)

const patientIDPrefix = "PT"

// FormatPatientID renders a counter value as a patient identifier, e.g. 1 -> PT001.
func FormatPatientID(n int64) string {
	return fmt.Sprintf("%s%03d", patientIDPrefix, n)
}

// PatientRecord is append-only: it is written once after a terminal classification.
type PatientRecord struct {
	PatientID      string    `json:"patient_id"`
	OwnerUsername  string    `json:"owner_username"`
	PatientName    string    `json:"patient_name"`
	Notes          string    `json:"notes,omitempty"`
	Image          []byte    `json:"-"`
	Classification Label     `json:"classification"`
	Confidence     float64   `json:"confidence"`
	CreatedAt      time.Time `json:"created_at"`
}

type Credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
