package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/flash"
	"github.com/mjbphoto/gallery/guard"
)

const (
	NoticeWelcome     = "Welcome"
	NoticeLoginFailed = "Login failed"
	NoticeLoggedOut   = "Logged out"
)

type loginContent struct {
	Email string
}

type AuthHandler struct {
	Auth   backend.Auth
	Render *Renderer
	Log    *zap.SugaredLogger
	// SecureCookies marks the session cookie Secure (HTTPS deployments).
	SecureCookies bool
}

func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.Render.HTML(w, r, http.StatusOK, "login", Page{Title: "Login", Content: loginContent{}})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Render.HTML(w, r, http.StatusBadRequest, "login", Page{
			Title: "Login", Notice: NoticeLoginFailed, NoticeKind: NoticeError, Content: loginContent{},
		})
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	sess, err := h.Auth.SignInWithPassword(r.Context(), email, password)
	if err != nil {
		if !errors.Is(err, backend.ErrInvalidCredentials) {
			h.Log.Errorf("auth: sign in for %s failed: %v", email, err)
		}
		h.Render.HTML(w, r, http.StatusUnauthorized, "login", Page{
			Title: "Login", Notice: NoticeLoginFailed, NoticeKind: NoticeError, Content: loginContent{Email: email},
		})
		return
	}

	h.setSessionCookie(w, sess)
	flash.Set(w, NoticeWelcome)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Logout ends the session. Watchers of the session are notified by the
// backend and redirect their pages.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := guard.SessionFrom(r.Context()); ok {
		if err := h.Auth.SignOut(r.Context(), sess.AccessToken); err != nil {
			h.Log.Warnf("auth: sign out failed: %v", err)
		}
	}
	h.clearSessionCookie(w)
	flash.Set(w, NoticeLoggedOut)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sess *backend.Session) {
	c := &http.Cookie{
		Name:     guard.SessionCookie,
		Value:    sess.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if !sess.ExpiresAt.IsZero() {
		c.Expires = sess.ExpiresAt
		c.MaxAge = int(time.Until(sess.ExpiresAt).Seconds())
	}
	http.SetCookie(w, c)
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     guard.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
