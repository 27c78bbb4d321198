package httpadapter

import (
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

type resultView struct {
	Variant           domain.Variant `json:"variant"`
	Label             domain.Label   `json:"label"`
	Confidence        float64        `json:"confidence"`
	DisplayConfidence string         `json:"display_confidence"`
	Probabilities     []float64      `json:"probabilities"`
}

type workflowView struct {
	ID          string               `json:"id,omitempty"`
	Mode        domain.Mode          `json:"mode,omitempty"`
	State       domain.WorkflowState `json:"state"`
	PatientName string               `json:"patient_name,omitempty"`
	Notes       string               `json:"notes,omitempty"`
	Stage1      *resultView          `json:"stage1,omitempty"`
	Stage2      *resultView          `json:"stage2,omitempty"`
	Final       *resultView          `json:"final,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
	RecordID    string               `json:"record_id,omitempty"`
	NextAction  string               `json:"next_action"`
}

type patientView struct {
	PatientID         string       `json:"patient_id"`
	PatientName       string       `json:"patient_name"`
	Notes             string       `json:"notes"`
	Classification    domain.Label `json:"classification"`
	Confidence        float64      `json:"confidence"`
	DisplayConfidence string       `json:"display_confidence"`
	HasImage          bool         `json:"has_image"`
	CreatedAt         time.Time    `json:"created_at"`
}

func toResultView(res *domain.ClassificationResult) *resultView {
	if res == nil {
		return nil
	}
	return &resultView{
		Variant:           res.Variant,
		Label:             res.Label,
		Confidence:        res.Confidence,
		DisplayConfidence: res.DisplayConfidence(),
		Probabilities:     res.Probabilities,
	}
}

func toWorkflowView(wf *domain.Workflow) workflowView {
	if wf == nil {
		return workflowView{State: domain.StateAwaitingImage, NextAction: "upload"}
	}
	view := workflowView{
		ID:          wf.ID,
		Mode:        wf.Mode,
		State:       wf.State,
		PatientName: wf.PatientName,
		Notes:       wf.Notes,
		Stage1:      toResultView(wf.Stage1),
		Stage2:      toResultView(wf.Stage2),
		Final:       toResultView(wf.Final),
		LastError:   wf.LastError,
		RecordID:    wf.RecordID,
	}
	switch {
	case wf.AwaitingConfirmation():
		view.NextAction = "confirm"
	case wf.Terminal() && wf.RecordID == "":
		view.NextAction = "record"
	default:
		view.NextAction = "upload"
	}
	return view
}

func toPatientView(rec domain.PatientRecord) patientView {
	return patientView{
		PatientID:         rec.PatientID,
		PatientName:       rec.PatientName,
		Notes:             rec.Notes,
		Classification:    rec.Classification,
		Confidence:        rec.Confidence,
		DisplayConfidence: domain.FormatConfidence(rec.Confidence),
		HasImage:          len(rec.Image) > 0,
		CreatedAt:         rec.CreatedAt,
	}
}
