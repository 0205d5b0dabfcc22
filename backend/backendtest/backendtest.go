// Package backendtest provides in-memory backend implementations with
// failure injection and an ordered call log, for tests of the packages built
// on the backend contracts.
package backendtest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/models"
)

// Recorder is an ordered log of backend calls shared by the fakes.
type Recorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *Recorder) add(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.ops = append(r.ops, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Ops returns a copy of the log, e.g. "select JEJU", "remove 42.jpg".
func (r *Recorder) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}

// Table is an in-memory PhotoTable.
type Table struct {
	mu     sync.Mutex
	rows   []models.Photo
	nextID int64
	rec    *Recorder
	now    func() time.Time

	selectErr error
	insertErr error
	updateErr error
	deleteErr error
}

func NewTable(rec *Recorder, seed ...models.Photo) *Table {
	t := &Table{rec: rec, nextID: 1}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	t.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	for _, p := range seed {
		if p.ID >= t.nextID {
			t.nextID = p.ID + 1
		}
		t.rows = append(t.rows, p)
	}
	return t
}

func (t *Table) FailSelect(err error) { t.mu.Lock(); t.selectErr = err; t.mu.Unlock() }
func (t *Table) FailInsert(err error) { t.mu.Lock(); t.insertErr = err; t.mu.Unlock() }
func (t *Table) FailUpdate(err error) { t.mu.Lock(); t.updateErr = err; t.mu.Unlock() }
func (t *Table) FailDelete(err error) { t.mu.Lock(); t.deleteErr = err; t.mu.Unlock() }

// Rows returns the stored rows newest first.
func (t *Table) Rows() []models.Photo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sorted("")
}

func (t *Table) sorted(category models.Category) []models.Photo {
	out := []models.Photo{}
	for _, p := range t.rows {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (t *Table) Select(ctx context.Context, q backend.Query) ([]models.Photo, error) {
	if q.Category == "" {
		t.rec.add("select *")
	} else {
		t.rec.add("select %s", q.Category)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selectErr != nil {
		return nil, t.selectErr
	}
	return t.sorted(q.Category), nil
}

func (t *Table) Get(ctx context.Context, id int64) (models.Photo, error) {
	t.rec.add("get %d", id)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selectErr != nil {
		return models.Photo{}, t.selectErr
	}
	for _, p := range t.rows {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Photo{}, fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
}

func (t *Table) Insert(ctx context.Context, np models.NewPhoto) (models.Photo, error) {
	t.rec.add("insert %s", np.URL)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.insertErr != nil {
		return models.Photo{}, t.insertErr
	}
	p := models.Photo{
		ID:        t.nextID,
		URL:       np.URL,
		Title:     np.Title,
		Location:  np.Location,
		Category:  np.Category,
		CreatedAt: t.now(),
	}
	t.nextID++
	t.rows = append(t.rows, p)
	return p, nil
}

func (t *Table) Update(ctx context.Context, id int64, f models.PhotoFields) error {
	t.rec.add("update %d", id)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.updateErr != nil {
		return t.updateErr
	}
	for i := range t.rows {
		if t.rows[i].ID == id {
			t.rows[i].Title = f.Title
			t.rows[i].Location = f.Location
			t.rows[i].Category = f.Category
			return nil
		}
	}
	return fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
}

func (t *Table) Delete(ctx context.Context, id int64) error {
	t.rec.add("delete %d", id)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deleteErr != nil {
		return t.deleteErr
	}
	for i := range t.rows {
		if t.rows[i].ID == id {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
}

// PublicBase is the URL prefix of objects stored in Objects.
const PublicBase = "https://project.supabase.test/storage/v1/object/public/images"

// Objects is an in-memory ObjectStore.
type Objects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	rec     *Recorder

	uploadErr error
	removeErr error
}

func NewObjects(rec *Recorder) *Objects {
	return &Objects{objects: map[string][]byte{}, types: map[string]string{}, rec: rec}
}

func (o *Objects) FailUpload(err error) { o.mu.Lock(); o.uploadErr = err; o.mu.Unlock() }
func (o *Objects) FailRemove(err error) { o.mu.Lock(); o.removeErr = err; o.mu.Unlock() }

// Put stores an object directly, bypassing the log.
func (o *Objects) Put(name string, data []byte) {
	o.mu.Lock()
	o.objects[name] = data
	o.mu.Unlock()
}

func (o *Objects) Has(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[name]
	return ok
}

func (o *Objects) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.objects))
	for n := range o.objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (o *Objects) ContentType(name string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.types[name]
}

func (o *Objects) Upload(ctx context.Context, name, contentType string, data io.Reader) error {
	o.rec.add("upload %s", name)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.uploadErr != nil {
		return o.uploadErr
	}
	if _, exists := o.objects[name]; exists {
		return fmt.Errorf("object %s already exists", name)
	}
	o.objects[name] = buf.Bytes()
	o.types[name] = contentType
	return nil
}

func (o *Objects) PublicURL(name string) string {
	return PublicBase + "/" + name
}

func (o *Objects) Remove(ctx context.Context, names ...string) error {
	for _, n := range names {
		o.rec.add("remove %s", n)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.removeErr != nil {
		return o.removeErr
	}
	for _, n := range names {
		delete(o.objects, n)
	}
	return nil
}

// Auth is an in-memory Auth with one account.
type Auth struct {
	mu        sync.Mutex
	email     string
	password  string
	sessions  map[string]*backend.Session
	seq       int
	listeners *backend.Listeners
	getErr    error
}

func NewAuth(email, password string) *Auth {
	return &Auth{
		email:     email,
		password:  password,
		sessions:  map[string]*backend.Session{},
		listeners: backend.NewListeners(),
	}
}

// FailGetSession makes GetSession fail with err (nil restores it).
func (a *Auth) FailGetSession(err error) { a.mu.Lock(); a.getErr = err; a.mu.Unlock() }

// Issue creates a session without a password check.
func (a *Auth) Issue(ttl time.Duration) *backend.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	sess := &backend.Session{
		AccessToken: fmt.Sprintf("token-%d", a.seq),
		ExpiresAt:   time.Now().Add(ttl),
		UserEmail:   a.email,
	}
	a.sessions[sess.AccessToken] = sess
	return sess
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	if email != a.email || password != a.password {
		return nil, backend.ErrInvalidCredentials
	}
	return a.Issue(time.Hour), nil
}

func (a *Auth) GetSession(ctx context.Context, accessToken string) (*backend.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.getErr != nil {
		return nil, a.getErr
	}
	sess, ok := a.sessions[accessToken]
	if !ok {
		return nil, backend.ErrNoSession
	}
	return sess, nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	a.Revoke(accessToken, backend.EventSignedOut)
	return nil
}

// Revoke drops the session and notifies its listeners with event.
func (a *Auth) Revoke(accessToken string, event backend.AuthEvent) {
	a.mu.Lock()
	delete(a.sessions, accessToken)
	a.mu.Unlock()
	a.listeners.Notify(accessToken, backend.AuthChange{Event: event})
}

func (a *Auth) OnAuthStateChange(accessToken string, fn func(backend.AuthChange)) func() {
	remove, _ := a.listeners.Add(accessToken, fn)
	return func() { remove() }
}

func (a *Auth) ListenerCount() int {
	return a.listeners.Count()
}

// Client bundles fresh fakes sharing one Recorder.
func Client(rec *Recorder, seed ...models.Photo) (backend.Client, *Auth, *Table, *Objects) {
	auth := NewAuth("admin@example.com", "secret")
	table := NewTable(rec, seed...)
	objects := NewObjects(rec)
	return backend.Client{Auth: auth, Photos: table, Objects: objects}, auth, table, objects
}
