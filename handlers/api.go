package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/dashboard"
	"github.com/mjbphoto/gallery/gallery"
	"github.com/mjbphoto/gallery/models"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.S().Errorf("handlers: failed to encode JSON response: %v", err)
		}
	}
}

type categoryJSON struct {
	Value models.Category `json:"value"`
	Slug  string          `json:"slug"`
	Label string          `json:"label"`
}

type galleryJSON struct {
	Category models.Category `json:"category"`
	Sort     string          `json:"sort"`
	Photos   []models.Photo  `json:"photos"`
}

type photosJSON struct {
	Photos []models.Photo `json:"photos"`
}

// APIHandler serves the JSON surface: public gallery reads and the guarded
// admin CRUD.
type APIHandler struct {
	Gallery        *gallery.Service
	Dashboard      *dashboard.Service
	Log            *zap.SugaredLogger
	MaxUploadBytes int64
}

func (h *APIHandler) Categories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryJSON, 0, len(models.Categories))
	for _, c := range models.Categories {
		out = append(out, categoryJSON{Value: c, Slug: c.Slug(), Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) GalleryPhotos(w http.ResponseWriter, r *http.Request) {
	category, photos, err := h.Gallery.Category(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeServiceError(w, err)
		return
	}
	order, _ := sortOrderFrom(r)
	writeJSON(w, http.StatusOK, galleryJSON{Category: category, Sort: order, Photos: gallery.SortPhotos(photos, order)})
}

func (h *APIHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	d := h.Dashboard.Load(r.Context())
	writeJSON(w, http.StatusOK, photosJSON{Photos: d.Photos})
}

func (h *APIHandler) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := parseCreateForm(w, r, h.MaxUploadBytes)
	defer cleanup()
	if err != nil {
		if isTooLarge(err) {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, CodeTooLarge, "Upload exceeds the size limit")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart form")
		return
	}

	d := h.Dashboard.Blank()
	if err := d.Submit(r.Context(), in); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, photosJSON{Photos: d.Photos})
}

func (h *APIHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(r)
	if !ok {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Photo not found")
		return
	}
	var req struct {
		Title    string `json:"title"`
		Location string `json:"location"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	d := h.Dashboard.Blank()
	if err := d.Edit(r.Context(), id, dashboard.UpdateInput{Title: req.Title, Location: req.Location, Category: req.Category}); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photosJSON{Photos: d.Photos})
}

// DeletePhoto requires ?confirm=true, the API analogue of the confirmation
// overlay.
func (h *APIHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := photoID(r)
	if !ok {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Photo not found")
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	d := h.Dashboard.Blank()
	if err := d.Remove(r.Context(), id, confirmed); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, photosJSON{Photos: d.Photos})
}
