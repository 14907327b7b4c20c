package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	appI18n "github.com/pavelanni/learnmate/internal/i18n"
	"github.com/pavelanni/learnmate/internal/model"
)

const (
	sessionCookieName = "learnmate_session"
	csrfCookieName    = "csrf_token"

	// formOverhead is the body allowance on top of the upload limit for the
	// other multipart fields.
	formOverhead = 1 << 20
	// multipartMemory is how much of a multipart body is kept in memory.
	multipartMemory = 8 << 20
)

// sessionMiddleware identifies the anonymous visitor by a uuid cookie,
// creating a new session when the cookie is missing or malformed.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookieName); err == nil {
			if u, err := uuid.Parse(c.Value); err == nil {
				id = u.String()
			}
		}
		if id != "" {
			sess, err := h.store.GetSession(id)
			if err != nil {
				slog.Error("failed to load session", "session", id, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if sess != nil {
				err = h.store.TouchSession(id)
			} else {
				// Cleaned up since the cookie was issued; keep the id.
				err = h.store.EnsureSession(id)
			}
			if err != nil {
				slog.Error("failed to record session", "session", id, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		} else {
			id = uuid.NewString()
			slog.Debug("new browser session", "session", id)
			if err := h.store.EnsureSession(id); err != nil {
				slog.Error("failed to record session", "session", id, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		}

		cookie := &http.Cookie{
			Name:     sessionCookieName,
			Value:    id,
			Path:     h.cookiePath(),
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		}
		if h.config.SessionTTL > 0 {
			cookie.MaxAge = int(h.config.SessionTTL.Seconds())
		}
		http.SetCookie(w, cookie)

		ctx := model.ContextWithSessionID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	token, err := generateCSRFToken()
	if err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return r, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return r.WithContext(model.ContextWithCSRFToken(r.Context(), token)), true
}

// parseForm parses url-encoded and multipart bodies, the latter capped at the
// configured upload size.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return r.ParseForm()
	}
	if h.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+formOverhead)
	}
	return r.ParseMultipartForm(multipartMemory)
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			r, ok := h.setCSRFCookie(w, r)
			if !ok {
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if err := h.parseForm(w, r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				slog.Warn("request body too large", "limit", tooLarge.Limit)
				http.Error(w, appI18n.T(r.Context(), "ErrFileTooLarge"), http.StatusRequestEntityTooLarge)
				return
			}
			slog.Warn("failed to parse form", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		formToken := r.FormValue("csrf_token")
		if formToken == "" {
			slog.Warn("CSRF form token missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		r, ok := h.setCSRFCookie(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r)
	})
}
