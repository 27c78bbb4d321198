package httpadapter

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

func (rt *Router) listPatients(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	records, err := rt.records.List(r.Context(), sess.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]patientView, 0, len(records))
	for _, rec := range records {
		views = append(views, toPatientView(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": views})
}

func (rt *Router) getPatient(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	record, err := rt.records.Get(r.Context(), sess.Username, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPatientView(*record))
}

func (rt *Router) getPatientImage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	record, err := rt.records.Get(r.Context(), sess.Username, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(record.Image) == 0 {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get patient image", errors.New("no image stored")))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(record.Image))
	w.Header().Set("Content-Length", strconv.Itoa(len(record.Image)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(record.Image)
}

func (rt *Router) exportPatients(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	// Buffered so a failed export still produces a JSON error instead of a truncated file.
	var buf bytes.Buffer
	if err := rt.records.Export(r.Context(), sess.Username, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rt.records.ExportContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="patients.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
