// Package local implements the backend contracts on infrastructure the
// gallery runs itself: a gorm account table with JWT sessions, a SQL photo
// table and a media.Store for objects.
package local

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/repository"
)

const tokenIssuer = "mjb-gallery"

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Auth issues HS256 access tokens for admin accounts. Sign-out revokes the
// token id in memory, so revocations do not survive a restart; tokens stay
// bounded by their TTL.
type Auth struct {
	users     repository.UserRepository
	secret    []byte
	ttl       time.Duration
	listeners *backend.Listeners
	log       *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
	timers  map[string]*time.Timer
}

func NewAuth(users repository.UserRepository, secret string, ttl time.Duration, log *zap.SugaredLogger) *Auth {
	return &Auth{
		users:     users,
		secret:    []byte(secret),
		ttl:       ttl,
		listeners: backend.NewListeners(),
		log:       log,
		now:       time.Now,
		revoked:   make(map[string]time.Time),
		timers:    make(map[string]*time.Timer),
	}
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	user, err := a.users.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, backend.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if !user.CheckPassword(password) {
		return nil, backend.ErrInvalidCredentials
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := &sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	a.log.Infof("local.auth: %s signed in", user.Email)
	session := &backend.Session{AccessToken: tokenString, ExpiresAt: expiresAt.Truncate(time.Second), UserEmail: user.Email}
	a.listeners.Notify(tokenString, backend.AuthChange{Event: backend.EventSignedIn, Session: session})
	return session, nil
}

func (a *Auth) parse(accessToken string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (a *Auth) isRevoked(jti string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.revoked[jti]
	return ok
}

func (a *Auth) GetSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	if accessToken == "" {
		return nil, backend.ErrNoSession
	}
	claims, err := a.parse(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrNoSession, err)
	}
	if a.isRevoked(claims.ID) {
		return nil, fmt.Errorf("%w: token revoked", backend.ErrNoSession)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", backend.ErrNoSession)
	}
	user, err := a.users.GetByID(uint(userID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: account removed", backend.ErrNoSession)
		}
		return nil, fmt.Errorf("failed to load account %d: %w", userID, err)
	}

	return &backend.Session{
		AccessToken: accessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
		UserEmail:   user.Email,
	}, nil
}

// SignOut revokes the token and notifies its listeners. Signing out an
// invalid token is a no-op.
func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	claims, err := a.parse(accessToken)
	if err != nil {
		return nil
	}

	now := a.now()
	a.mu.Lock()
	for jti, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, jti)
		}
	}
	a.revoked[claims.ID] = claims.ExpiresAt.Time
	a.mu.Unlock()

	a.log.Infof("local.auth: %s signed out", claims.Email)
	a.listeners.Notify(accessToken, backend.AuthChange{Event: backend.EventSignedOut})
	return nil
}

// OnAuthStateChange also arms an expiry timer for the token while at least
// one listener is registered. a.mu orders registrations against removals, so
// a timer armed for a new first listener is never stopped by an older last
// removal.
func (a *Auth) OnAuthStateChange(accessToken string, fn func(backend.AuthChange)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	remove, first := a.listeners.Add(accessToken, fn)
	if first {
		a.armExpiryLocked(accessToken)
	}
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if remove() {
			if t, ok := a.timers[accessToken]; ok {
				t.Stop()
				delete(a.timers, accessToken)
			}
		}
	}
}

func (a *Auth) armExpiryLocked(accessToken string) {
	claims, err := a.parse(accessToken)
	if err != nil {
		return
	}
	wait := claims.ExpiresAt.Time.Sub(a.now())
	a.timers[accessToken] = time.AfterFunc(wait, func() {
		a.listeners.Notify(accessToken, backend.AuthChange{Event: backend.EventTokenExpired})
	})
}

// ListenerCount reports registered auth listeners across all tokens.
func (a *Auth) ListenerCount() int {
	return a.listeners.Count()
}
