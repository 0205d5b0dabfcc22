package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/flash"
	"github.com/mjbphoto/gallery/guard"
	"github.com/mjbphoto/gallery/models"
)

const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// scrollLockClass is set on <body> while an overlay is open.
const scrollLockClass = "modal-open"

// Page is the data every template receives. Content carries the page
// specific view model.
type Page struct {
	Title      string
	Notice     string
	NoticeKind string
	BodyClass  string
	Categories []models.Category
	SignedIn   bool
	Content    any
}

type errorContent struct {
	Heading string
	Message string
}

// Renderer executes one template set per page: the shared layout plus the
// page's own definitions.
type Renderer struct {
	pages map[string]*template.Template
	log   *zap.SugaredLogger
}

var templateFuncs = template.FuncMap{
	"slug":  func(c models.Category) string { return c.Slug() },
	"label": func(c models.Category) string { return c.Label() },
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	// replaced per request
	"csrfToken": func() string { return "" },
}

func NewRenderer(templates fs.FS, log *zap.SugaredLogger) (*Renderer, error) {
	pages := map[string]*template.Template{}
	for _, name := range []string{"home", "gallery", "login", "admin", "error"} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templates, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages, log: log}, nil
}

// HTML renders page with status. A pending flash notice is shown unless the
// page already carries one.
func (rd *Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	master, ok := rd.pages[name]
	if !ok {
		rd.log.Errorf("handlers: unknown template %s", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	t, err := master.Clone()
	if err != nil {
		rd.log.Errorf("handlers: failed to clone template %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	t.Funcs(template.FuncMap{"csrfToken": func() string { return csrf.Token(r) }})

	if pending := flash.Pop(w, r); pending != "" && page.Notice == "" {
		page.Notice = pending
		page.NoticeKind = NoticeInfo
	}
	if page.Notice != "" && page.NoticeKind == "" {
		page.NoticeKind = NoticeInfo
	}
	if page.Categories == nil {
		page.Categories = models.Categories
	}
	if !page.SignedIn {
		_, page.SignedIn = guard.SessionFrom(r.Context())
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		rd.log.Errorf("handlers: failed to render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Error renders the error page.
func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.HTML(w, r, status, "error", Page{
		Title:   http.StatusText(status),
		Content: errorContent{Heading: http.StatusText(status), Message: message},
	})
}
