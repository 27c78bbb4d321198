package domain

import "time"

type Mode string

const (
	ModeMulticlass Mode = "multiclass"
	ModeStaged     Mode = "staged"
)

func (m Mode) Valid() bool {
	return m == ModeMulticlass || m == ModeStaged
}

type WorkflowState string

const (
	StateAwaitingImage        WorkflowState = "awaiting_image"
	StateAwaitingConfirmation WorkflowState = "awaiting_confirmation"
	StateDone                 WorkflowState = "done"
)

// Workflow is one classification submission. In staged mode it may be suspended in
// StateAwaitingConfirmation, holding the stage-1 tensor until the user confirms stage 2.
type Workflow struct {
	ID          string        `json:"id"`
	Mode        Mode          `json:"mode"`
	State       WorkflowState `json:"state"`
	PatientName string        `json:"patient_name"`
	Notes       string        `json:"notes,omitempty"`
	MimeType    string        `json:"mime_type"`
	Image       []byte        `json:"-"`
	Tensor      *Tensor       `json:"-"`

	Stage1 *ClassificationResult `json:"stage1,omitempty"`
	Stage2 *ClassificationResult `json:"stage2,omitempty"`
	Final  *ClassificationResult `json:"final,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *Workflow) Terminal() bool {
	return w != nil && w.State == StateDone && w.Final != nil
}

func (w *Workflow) AwaitingConfirmation() bool {
	return w != nil && w.State == StateAwaitingConfirmation
}
