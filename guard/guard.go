// Package guard gates the admin surface behind a valid backend session.
package guard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/flash"
)

// SessionCookie holds the access token of a signed-in admin.
const SessionCookie = "mjb_session"

// NoticeAdminsOnly is flashed when an anonymous visitor reaches the admin
// surface.
const NoticeAdminsOnly = "Admins only"

type State int

const (
	Checking State = iota
	Authorized
	Unauthorized
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	}
	return "unknown"
}

// Transition is delivered by Watch when the watched session goes away.
type Transition struct {
	To       State
	Redirect string
	Event    backend.AuthEvent
}

type Guard struct {
	auth      backend.Auth
	loginPath string
	log       *zap.SugaredLogger
	now       func() time.Time
}

func New(auth backend.Auth, loginPath string, log *zap.SugaredLogger) *Guard {
	return &Guard{auth: auth, loginPath: loginPath, log: log, now: time.Now}
}

// LoginPath is where unauthorized visitors are sent.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Check resolves the state for token. Any failure resolves to Unauthorized.
func (g *Guard) Check(ctx context.Context, token string) (State, *backend.Session) {
	if token == "" {
		return Unauthorized, nil
	}
	sess, err := g.auth.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, backend.ErrNoSession) {
			g.log.Warnf("guard: session check failed: %v", err)
		}
		return Unauthorized, nil
	}
	if sess == nil || sess.Expired(g.now()) {
		return Unauthorized, nil
	}
	return Authorized, sess
}

// TokenFromRequest reads the access token from the session cookie, or from a
// bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return BearerToken(r)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type sessionKey struct{}

// SessionFrom returns the session stored by the middleware.
func SessionFrom(ctx context.Context) (*backend.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*backend.Session)
	return sess, ok && sess != nil
}

func (g *Guard) authorize(r *http.Request, token string) (*http.Request, bool) {
	state, sess := g.Check(r.Context(), token)
	if state != Authorized {
		return r, false
	}
	ctx := context.WithValue(r.Context(), sessionKey{}, sess)
	ctx = backend.WithAccessToken(ctx, sess.AccessToken)
	return r.WithContext(ctx), true
}

// Middleware protects admin pages. Nothing reaches next until the check has
// resolved; unauthorized visitors get a notice and a 303 to the login page.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		authed, ok := g.authorize(r, TokenFromRequest(r))
		if !ok {
			flash.Set(w, NoticeAdminsOnly)
			http.Redirect(w, r, g.loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, authed)
	})
}

// APIMiddleware protects JSON endpoints. Requests without a valid bearer
// token (or session cookie) are handed to denied.
func (g *Guard) APIMiddleware(denied http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			token := BearerToken(r)
			if token == "" {
				token = TokenFromRequest(r)
			}
			authed, ok := g.authorize(r, token)
			if !ok {
				denied(w, r)
				return
			}
			next.ServeHTTP(w, authed)
		})
	}
}

type watch struct {
	mu     sync.Mutex
	closed bool
	out    chan Transition
	done   chan struct{}
}

func (w *watch) deliver(t Transition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.out <- t
	w.closeLocked()
}

func (w *watch) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closeLocked()
	}
}

func (w *watch) closeLocked() {
	w.closed = true
	close(w.out)
	close(w.done)
}

// Watch follows the session behind token for one admin view. The channel
// yields at most one Transition, to Unauthorized, and is then closed. The
// returned cancel function, or cancelling ctx, ends the watch and removes
// its backend subscription; it is safe to call more than once.
func (g *Guard) Watch(ctx context.Context, token string) (<-chan Transition, func()) {
	w := &watch{out: make(chan Transition, 1), done: make(chan struct{})}

	var unsubscribe func()
	var unsubOnce sync.Once
	release := func() {
		unsubOnce.Do(func() {
			if unsubscribe != nil {
				unsubscribe()
			}
		})
	}

	signalLost := func(event backend.AuthEvent) {
		w.deliver(Transition{To: Unauthorized, Redirect: g.loginPath, Event: event})
	}

	var subMu sync.Mutex
	subMu.Lock()
	unsubscribe = g.auth.OnAuthStateChange(token, func(change backend.AuthChange) {
		if change.Session != nil && !change.Session.Expired(g.now()) {
			return
		}
		signalLost(change.Event)
		go func() {
			subMu.Lock()
			defer subMu.Unlock()
			release()
		}()
	})
	subMu.Unlock()

	// Subscribed first, so a sign-out racing with this check is not lost.
	if state, _ := g.Check(ctx, token); state != Authorized {
		signalLost(backend.EventSignedOut)
		release()
	}

	cancel := func() {
		subMu.Lock()
		defer subMu.Unlock()
		release()
		w.stop()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-w.done:
		}
	}()

	return w.out, cancel
}
