package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/backend/backendtest"
	"github.com/mjbphoto/gallery/flash"
	"github.com/mjbphoto/gallery/logging"
)

func newGuard() (*Guard, *backendtest.Auth) {
	auth := backendtest.NewAuth("admin@example.com", "secret")
	return New(auth, "/login", logging.Nop()), auth
}

func TestCheck(t *testing.T) {
	g, auth := newGuard()
	ctx := context.Background()

	state, sess := g.Check(ctx, "")
	assert.Equal(t, Unauthorized, state)
	assert.Nil(t, sess)

	state, _ = g.Check(ctx, "unknown")
	assert.Equal(t, Unauthorized, state)

	issued := auth.Issue(time.Hour)
	state, sess = g.Check(ctx, issued.AccessToken)
	assert.Equal(t, Authorized, state)
	assert.Equal(t, issued, sess)

	expired := auth.Issue(-time.Minute)
	state, _ = g.Check(ctx, expired.AccessToken)
	assert.Equal(t, Unauthorized, state)

	auth.FailGetSession(errors.New("network down"))
	state, _ = g.Check(ctx, issued.AccessToken)
	assert.Equal(t, Unauthorized, state)
}

func TestMiddlewareRedirectsWithoutRenderingContent(t *testing.T) {
	g, _ := newGuard()
	called := false
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte("secret dashboard"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.NotContains(t, rr.Body.String(), "secret dashboard")

	var notice string
	for _, c := range rr.Result().Cookies() {
		if c.Name == flash.CookieName {
			notice = c.Value
		}
	}
	assert.Equal(t, "Admins+only", notice)
}

func TestMiddlewareStoresSession(t *testing.T) {
	g, auth := newGuard()
	sess := auth.Issue(time.Hour)

	var seen *backend.Session
	var token string
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFrom(r.Context())
		token = backend.AccessTokenFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.AccessToken})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, sess, seen)
	assert.Equal(t, sess.AccessToken, token)
}

func TestAPIMiddlewareUsesBearerToken(t *testing.T) {
	g, auth := newGuard()
	sess := auth.Issue(time.Hour)
	denied := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) }
	h := g.APIMiddleware(denied)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/admin/photos", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/photos", nil)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestWatchDeliversSignOut(t *testing.T) {
	g, auth := newGuard()
	sess := auth.Issue(time.Hour)

	transitions, cancel := g.Watch(context.Background(), sess.AccessToken)
	defer cancel()

	auth.Revoke(sess.AccessToken, backend.EventSignedOut)

	select {
	case tr, ok := <-transitions:
		require.True(t, ok)
		assert.Equal(t, Unauthorized, tr.To)
		assert.Equal(t, "/login", tr.Redirect)
		assert.Equal(t, backend.EventSignedOut, tr.Event)
	case <-time.After(time.Second):
		t.Fatal("no transition after sign-out")
	}

	_, ok := <-transitions
	assert.False(t, ok, "channel closes after the terminal transition")
}

func TestWatchOfDeadSessionFiresImmediately(t *testing.T) {
	g, _ := newGuard()

	transitions, cancel := g.Watch(context.Background(), "gone")
	defer cancel()

	select {
	case tr := <-transitions:
		assert.Equal(t, Unauthorized, tr.To)
	case <-time.After(time.Second):
		t.Fatal("no transition for a dead session")
	}
}

func TestWatchTeardownLeavesNoListeners(t *testing.T) {
	g, auth := newGuard()
	sess := auth.Issue(time.Hour)

	const n = 25
	cancels := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		_, cancel := g.Watch(context.Background(), sess.AccessToken)
		cancels = append(cancels, cancel)
	}
	assert.Equal(t, n, auth.ListenerCount())

	for _, cancel := range cancels {
		cancel()
		cancel()
	}
	assert.Equal(t, 0, auth.ListenerCount())
}

func TestWatchEndsWithContext(t *testing.T) {
	g, auth := newGuard()
	sess := auth.Issue(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	transitions, _ := g.Watch(ctx, sess.AccessToken)
	cancel()

	select {
	case _, ok := <-transitions:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch did not end with its context")
	}
	assert.Eventually(t, func() bool { return auth.ListenerCount() == 0 }, time.Second, time.Millisecond)
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(req))
}
