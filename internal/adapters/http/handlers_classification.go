package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

const multipartMemoryLimit = 8 << 20

var allowedImageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type recordRequest struct {
	PatientName *string `json:"patient_name"`
	Notes       *string `json:"notes"`
}

func (rt *Router) startClassification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, domain.WrapError(domain.ErrInvalidImage, "upload image", fmt.Errorf("image exceeds %d bytes", rt.cfg.UploadMaxBytes)))
			return
		}
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload image", errors.New("expected multipart/form-data")))
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload image", errors.New("image file is required")))
		return
	}
	defer file.Close()

	mimeType, ok := allowedImageTypes[strings.ToLower(filepath.Ext(header.Filename))]
	if !ok {
		writeError(w, r, domain.WrapError(domain.ErrInvalidImage, "upload image", fmt.Errorf("unsupported file type %q, use jpg, jpeg or png", filepath.Ext(header.Filename))))
		return
	}
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidImage, "upload image", err))
		return
	}

	mode := domain.Mode(strings.ToLower(strings.TrimSpace(r.FormValue("mode"))))
	if mode == "" {
		mode = domain.ModeMulticlass
	}
	req := ports.StartClassification{
		Mode:        mode,
		Image:       image,
		MimeType:    mimeType,
		PatientName: r.FormValue("patient_name"),
		Notes:       r.FormValue("notes"),
	}

	// Inference is not interrupted by a client disconnect once it has started.
	ctx := context.WithoutCancel(r.Context())
	var view workflowView
	err = rt.sessions.Update(ctx, sess.ID, func(s *domain.Session) error {
		wf, err := rt.classify.Start(ctx, req)
		if err != nil {
			return err
		}
		s.Workflow = wf
		view = toWorkflowView(wf)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordWorkflow(view)
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) confirmClassification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	ctx := context.WithoutCancel(r.Context())

	var view workflowView
	err := rt.sessions.Update(ctx, sess.ID, func(s *domain.Session) error {
		if err := rt.classify.Confirm(ctx, s.Workflow); err != nil {
			return err
		}
		view = toWorkflowView(s.Workflow)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordWorkflow(view)
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) currentClassification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, toWorkflowView(sess.Workflow))
}

func (rt *Router) resetClassification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	err := rt.sessions.Update(r.Context(), sess.ID, func(s *domain.Session) error {
		s.Workflow = nil
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) recordClassification(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req recordRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "record patient", errors.New("invalid json")))
			return
		}
	}

	var record *domain.PatientRecord
	err := rt.sessions.Update(r.Context(), sess.ID, func(s *domain.Session) error {
		wf := s.Workflow
		if wf != nil && wf.RecordID == "" {
			if req.PatientName != nil {
				wf.PatientName = strings.TrimSpace(*req.PatientName)
			}
			if req.Notes != nil {
				wf.Notes = strings.TrimSpace(*req.Notes)
			}
		}
		rec, err := rt.records.Record(r.Context(), s.Username, wf)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPatientSaved(serviceName, string(record.Classification))
	}
	writeJSON(w, http.StatusCreated, toPatientView(*record))
}

func (rt *Router) recordWorkflow(view workflowView) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordWorkflow(serviceName, string(view.Mode), string(view.State))
}
