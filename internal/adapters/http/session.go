package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
)

const sessionCookieName = "pneumo_session"

type sessionContextKey struct{}

func sessionFromContext(ctx context.Context) *domain.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*domain.Session)
	return sess
}

// sessionID reads the session from the cookie, falling back to a bearer token
// for non-browser clients.
func sessionID(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(headerValue string) string {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
}

func (rt *Router) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if id == "" {
			writeError(w, r, domain.WrapError(domain.ErrUnauthorized, "load session", errors.New("login required")))
			return
		}
		sess, err := rt.sessions.Get(r.Context(), id)
		if err != nil {
			rt.clearSessionCookie(w)
			writeError(w, r, err)
			return
		}
		noteUsername(r.Context(), sess.Username)
		next(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey{}, sess)))
	}
}

func (rt *Router) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   rt.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(rt.cfg.SessionIdleTimeout() / time.Second),
	})
}

func (rt *Router) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   rt.cfg.SessionCookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
