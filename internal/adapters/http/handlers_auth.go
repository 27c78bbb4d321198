package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (rt *Router) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "register", errors.New("invalid json")))
		return
	}
	cred, err := rt.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": cred.Username})
}

func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "login", errors.New("invalid json")))
		return
	}
	cred, err := rt.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Logging in again replaces the session the request arrived with.
	if old := sessionID(r); old != "" {
		_ = rt.sessions.Delete(r.Context(), old)
	}
	sess, err := rt.sessions.Create(r.Context(), cred.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.setSessionCookie(w, sess.ID)
	slog.Info("user_logged_in", "username", cred.Username, "request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{
		"username":   cred.Username,
		"session_id": sess.ID,
	})
}

func (rt *Router) logout(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		if err := rt.sessions.Delete(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	rt.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) me(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"username":   sess.Username,
		"logged_in":  true,
		"created_at": sess.CreatedAt,
	})
}
