// Package backend defines the contracts of the external platform the gallery
// runs on: session-based auth, the photos table and the object store.
// Implementations live in the supabase and local subpackages.
package backend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mjbphoto/gallery/models"
)

var (
	ErrNoSession          = errors.New("no active session")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("record not found")
)

// Session is the credential state handed out by Auth. Callers only check
// that one exists and is not expired.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserEmail    string    `json:"email"`
}

// Expired reports whether the session is past its expiry at now. A zero
// ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type AuthEvent string

const (
	EventSignedIn     AuthEvent = "SIGNED_IN"
	EventSignedOut    AuthEvent = "SIGNED_OUT"
	EventTokenExpired AuthEvent = "TOKEN_EXPIRED"
)

// AuthChange is delivered to OnAuthStateChange listeners. Session is nil when
// the change leaves no valid session behind.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// GetSession returns ErrNoSession when the token is empty, unknown,
	// revoked or expired.
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	// OnAuthStateChange registers fn for changes to the session identified by
	// accessToken. The returned function removes the registration and is
	// safe to call more than once.
	OnAuthStateChange(accessToken string, fn func(AuthChange)) (unsubscribe func())
}

// Query selects photo rows. An empty Category selects every row. Results are
// always ordered by creation time, newest first.
type Query struct {
	Category models.Category
}

type PhotoTable interface {
	Select(ctx context.Context, q Query) ([]models.Photo, error)
	// Get returns ErrNotFound when no row has the id.
	Get(ctx context.Context, id int64) (models.Photo, error)
	Insert(ctx context.Context, p models.NewPhoto) (models.Photo, error)
	Update(ctx context.Context, id int64, fields models.PhotoFields) error
	Delete(ctx context.Context, id int64) error
}

type ObjectStore interface {
	Upload(ctx context.Context, name, contentType string, data io.Reader) error
	PublicURL(name string) string
	Remove(ctx context.Context, names ...string) error
}

// Client bundles the three backend surfaces. It is built once in main and
// passed to every component that talks to the backend.
type Client struct {
	Auth    Auth
	Photos  PhotoTable
	Objects ObjectStore
}
