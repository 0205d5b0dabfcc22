package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/dashboard"
	"github.com/mjbphoto/gallery/models"
)

const (
	NoticeUploaded      = "Upload complete"
	NoticeUpdated       = "Photo updated"
	NoticeDeleted       = "Photo deleted"
	NoticeChooseFile    = "Please choose a photo to upload"
	NoticeFillFields    = "Title, location and a valid category are required"
	NoticeNotFound      = "That photo no longer exists"
	NoticeConfirmDelete = "Please confirm the delete"
	NoticeRetryDelete   = "The photo could not be deleted. Please try again."
	NoticeFailed        = "Something went wrong. Please try again."
	NoticeFileTooLarge  = "The photo is too large to upload"
)

type adminContent struct {
	Photos   []models.Photo
	Loaded   bool
	Form     dashboard.Form
	Editing  *models.Photo
	Edit     dashboard.Form
	Deleting *models.Photo
}

// AdminHandler serves the guarded dashboard pages. Every request loads its
// own dashboard state; responses are never cached.
type AdminHandler struct {
	Dashboard *dashboard.Service
	Render    *Renderer
	Log       *zap.SugaredLogger
	// MaxUploadBytes bounds multipart bodies.
	MaxUploadBytes int64
}

func (h *AdminHandler) render(w http.ResponseWriter, r *http.Request, status int, d *dashboard.Dashboard, content adminContent, notice, kind string) {
	if r.Context().Err() != nil {
		return
	}
	content.Photos = d.Photos
	content.Loaded = d.Loaded
	content.Form = d.Form
	h.Render.HTML(w, r, status, "admin", Page{
		Title:      "Dashboard",
		Notice:     notice,
		NoticeKind: kind,
		BodyClass:  bodyClassFor(content),
		SignedIn:   true,
		Content:    content,
	})
}

func bodyClassFor(c adminContent) string {
	if c.Editing != nil || c.Deleting != nil {
		return scrollLockClass
	}
	return ""
}

func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Load(r.Context())
	h.render(w, r, http.StatusOK, d, adminContent{}, "", "")
}

// noticeFor maps dashboard errors to a status and a user-facing notice.
func noticeFor(err error) (int, string) {
	switch {
	case errors.Is(err, dashboard.ErrNoFile):
		return http.StatusBadRequest, NoticeChooseFile
	case errors.Is(err, dashboard.ErrInvalidInput):
		return http.StatusBadRequest, NoticeFillFields
	case errors.Is(err, dashboard.ErrNotConfirmed):
		return http.StatusBadRequest, NoticeConfirmDelete
	case errors.Is(err, dashboard.ErrNotFound):
		return http.StatusNotFound, NoticeNotFound
	case errors.Is(err, dashboard.ErrRetryable):
		return http.StatusBadGateway, NoticeRetryDelete
	default:
		return http.StatusBadGateway, NoticeFailed
	}
}

func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := parseCreateForm(w, r, h.MaxUploadBytes)
	defer cleanup()
	d := h.Dashboard.Blank()
	if err != nil {
		h.Log.Warnf("admin: rejected upload form: %v", err)
		status, notice := http.StatusBadRequest, NoticeFailed
		if isTooLarge(err) {
			status, notice = http.StatusRequestEntityTooLarge, NoticeFileTooLarge
		}
		h.render(w, r, status, d, adminContent{}, notice, NoticeError)
		return
	}

	if err := d.Submit(r.Context(), in); err != nil {
		h.fail(w, r, d, adminContent{}, err)
		return
	}
	h.render(w, r, http.StatusOK, d, adminContent{}, NoticeUploaded, NoticeInfo)
}

// fail renders err as a notice. Rejected input is answered without fetching
// the list; backend failures show the current list.
func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, d *dashboard.Dashboard, content adminContent, err error) {
	if !dashboard.IsRejected(err) && !d.Loaded {
		d.Refresh(r.Context())
	}
	status, notice := noticeFor(err)
	h.render(w, r, status, d, content, notice, NoticeError)
}

func photoID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// EditForm opens the edit overlay buffered with the record's current values.
func (h *AdminHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Load(r.Context())
	id, ok := photoID(r)
	if !ok {
		h.render(w, r, http.StatusNotFound, d, adminContent{}, NoticeNotFound, NoticeError)
		return
	}
	photo, err := d.Photo(r.Context(), id)
	if err != nil {
		status, notice := noticeFor(err)
		h.render(w, r, status, d, adminContent{}, notice, NoticeError)
		return
	}
	h.render(w, r, http.StatusOK, d, adminContent{
		Editing: &photo,
		Edit:    dashboard.Form{Title: photo.Title, Location: photo.Location, Category: photo.Category},
	}, "", "")
}

func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Blank()
	id, ok := photoID(r)
	if !ok {
		d.Refresh(r.Context())
		h.render(w, r, http.StatusNotFound, d, adminContent{}, NoticeNotFound, NoticeError)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, d, adminContent{}, NoticeFailed, NoticeError)
		return
	}
	in := dashboard.UpdateInput{
		Title:    r.PostForm.Get("title"),
		Location: r.PostForm.Get("location"),
		Category: r.PostForm.Get("category"),
	}

	if err := d.Edit(r.Context(), id, in); err != nil {
		content := adminContent{}
		if errors.Is(err, dashboard.ErrInvalidInput) {
			// keep the overlay open with what was typed
			content.Editing = &models.Photo{ID: id}
			content.Edit = dashboard.Form{Title: in.Title, Location: in.Location, Category: models.Category(in.Category)}
		}
		h.fail(w, r, d, content, err)
		return
	}
	h.render(w, r, http.StatusOK, d, adminContent{}, NoticeUpdated, NoticeInfo)
}

// DeleteForm opens the confirmation overlay.
func (h *AdminHandler) DeleteForm(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Load(r.Context())
	id, ok := photoID(r)
	if !ok {
		h.render(w, r, http.StatusNotFound, d, adminContent{}, NoticeNotFound, NoticeError)
		return
	}
	photo, err := d.Photo(r.Context(), id)
	if err != nil {
		status, notice := noticeFor(err)
		h.render(w, r, status, d, adminContent{}, notice, NoticeError)
		return
	}
	h.render(w, r, http.StatusOK, d, adminContent{Deleting: &photo}, "", "")
}

func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Blank()
	id, ok := photoID(r)
	if !ok {
		d.Refresh(r.Context())
		h.render(w, r, http.StatusNotFound, d, adminContent{}, NoticeNotFound, NoticeError)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, d, adminContent{}, NoticeFailed, NoticeError)
		return
	}
	confirmed := r.PostForm.Get("confirm") == "yes"

	if err := d.Remove(r.Context(), id, confirmed); err != nil {
		h.fail(w, r, d, adminContent{}, err)
		return
	}
	h.render(w, r, http.StatusOK, d, adminContent{}, NoticeDeleted, NoticeInfo)
}
