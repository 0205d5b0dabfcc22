package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mjbphoto/gallery/backend"
)

// Auth wraps the GoTrue endpoints. Supabase pushes no server-side session
// events, so OnAuthStateChange polls the user endpoint while a token has
// listeners and also fires at the token's expiry.
type Auth struct {
	client       *Client
	listeners    *backend.Listeners
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pollers map[string]context.CancelFunc
}

func NewAuth(client *Client, pollInterval time.Duration) *Auth {
	return &Auth{
		client:       client,
		listeners:    backend.NewListeners(),
		pollInterval: pollInterval,
		now:          time.Now,
		pollers:      make(map[string]context.CancelFunc),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		Email string `json:"email"`
	} `json:"user"`
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	err = a.client.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/token",
		query:       url.Values{"grant_type": {"password"}},
		body:        body,
		contentType: "application/json",
	}, &tr)
	if err != nil {
		if s := statusOf(err); s == http.StatusBadRequest || s == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", backend.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	expiresAt := time.Unix(tr.ExpiresAt, 0)
	if tr.ExpiresAt == 0 {
		expiresAt = a.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	session := &backend.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
		UserEmail:    tr.User.Email,
	}
	a.listeners.Notify(tr.AccessToken, backend.AuthChange{Event: backend.EventSignedIn, Session: session})
	return session, nil
}

// tokenExpiry reads the exp claim without verifying the signature; GoTrue
// verifies the token on every call that matters.
func tokenExpiry(accessToken string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (a *Auth) GetSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	if accessToken == "" {
		return nil, backend.ErrNoSession
	}
	expiresAt, ok := tokenExpiry(accessToken)
	if ok && !a.now().Before(expiresAt) {
		return nil, fmt.Errorf("%w: token expired", backend.ErrNoSession)
	}

	var user struct {
		Email string `json:"email"`
	}
	err := a.client.do(ctx, request{
		method:      http.MethodGet,
		path:        "/auth/v1/user",
		accessToken: accessToken,
	}, &user)
	if err != nil {
		if s := statusOf(err); s == http.StatusUnauthorized || s == http.StatusForbidden || s == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %v", backend.ErrNoSession, err)
		}
		return nil, err
	}

	return &backend.Session{AccessToken: accessToken, ExpiresAt: expiresAt, UserEmail: user.Email}, nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	err := a.client.do(ctx, request{
		method:      http.MethodPost,
		path:        "/auth/v1/logout",
		accessToken: accessToken,
	}, nil)
	if err != nil {
		if s := statusOf(err); s != http.StatusUnauthorized && s != http.StatusForbidden && s != http.StatusNotFound {
			return err
		}
	}
	a.listeners.Notify(accessToken, backend.AuthChange{Event: backend.EventSignedOut})
	return nil
}

func (a *Auth) OnAuthStateChange(accessToken string, fn func(backend.AuthChange)) func() {
	// a.mu orders registrations against removals, so a poller started for a
	// new first listener is never cancelled by an older last removal
	a.mu.Lock()
	defer a.mu.Unlock()
	remove, first := a.listeners.Add(accessToken, fn)
	if first {
		ctx, cancel := context.WithCancel(context.Background())
		a.pollers[accessToken] = cancel
		go a.poll(ctx, accessToken)
	}
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if remove() {
			if cancel, ok := a.pollers[accessToken]; ok {
				cancel()
				delete(a.pollers, accessToken)
			}
		}
	}
}

func (a *Auth) poll(ctx context.Context, accessToken string) {
	expiresAt, hasExpiry := tokenExpiry(accessToken)
	for {
		wait := a.pollInterval
		if hasExpiry {
			if untilExpiry := expiresAt.Sub(a.now()); untilExpiry < wait {
				wait = untilExpiry
			}
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, err := a.GetSession(ctx, accessToken)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, backend.ErrNoSession) {
			a.client.log.Warnf("supabase.auth: session check failed, will retry: %v", err)
			continue
		}

		event := backend.EventSignedOut
		if hasExpiry && !a.now().Before(expiresAt) {
			event = backend.EventTokenExpired
		}
		a.listeners.Notify(accessToken, backend.AuthChange{Event: event})
		return
	}
}

// ListenerCount reports registered auth listeners across all tokens.
func (a *Auth) ListenerCount() int {
	return a.listeners.Count()
}
