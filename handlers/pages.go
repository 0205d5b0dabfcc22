package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/gallery"
	"github.com/mjbphoto/gallery/models"
)

type sortOption struct {
	Value  string
	Label  string
	Active bool
}

type galleryContent struct {
	Category    models.Category
	Photos      []models.Photo
	Selected    *models.Photo
	SortOptions []sortOption
	SortQuery   string
}

// PageHandler serves the public browsing surface.
type PageHandler struct {
	Gallery *gallery.Service
	Render  *Renderer
	Log     *zap.SugaredLogger
}

func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.Render.HTML(w, r, http.StatusOK, "home", Page{})
}

func sortOrderFrom(r *http.Request) (order, query string) {
	query = r.URL.Query().Get("sort")
	if !gallery.IsValidSortOrder(query) {
		query = ""
	}
	order = query
	if order == "" {
		order = gallery.DefaultSortOrder
	}
	return order, query
}

func sortOptions(active string) []sortOption {
	return []sortOption{
		{Value: gallery.SortDateDesc, Label: "Newest", Active: active == gallery.SortDateDesc},
		{Value: gallery.SortDateAsc, Label: "Oldest", Active: active == gallery.SortDateAsc},
		{Value: gallery.SortTitleNat, Label: "Title", Active: active == gallery.SortTitleNat},
	}
}

// ShowGallery renders one category grid.
func (h *PageHandler) ShowGallery(w http.ResponseWriter, r *http.Request) {
	category, photos, err := h.Gallery.Category(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.galleryError(w, r, err)
		return
	}
	order, query := sortOrderFrom(r)
	h.Render.HTML(w, r, http.StatusOK, "gallery", Page{
		Title: category.Label(),
		Content: galleryContent{
			Category:    category,
			Photos:      gallery.SortPhotos(photos, order),
			SortOptions: sortOptions(order),
			SortQuery:   query,
		},
	})
}

// Detail renders the grid with the detail overlay of one photo open.
func (h *PageHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.Render.Error(w, r, http.StatusNotFound, "Photo not found")
		return
	}
	category, photos, selected, err := h.Gallery.Photo(r.Context(), chi.URLParam(r, "category"), id)
	if err != nil {
		h.galleryError(w, r, err)
		return
	}
	order, query := sortOrderFrom(r)
	h.Render.HTML(w, r, http.StatusOK, "gallery", Page{
		Title:     selected.Title,
		BodyClass: scrollLockClass,
		Content: galleryContent{
			Category:    category,
			Photos:      gallery.SortPhotos(photos, order),
			Selected:    &selected,
			SortOptions: sortOptions(order),
			SortQuery:   query,
		},
	})
}

func (h *PageHandler) galleryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gallery.ErrUnknownCategory):
		h.Render.Error(w, r, http.StatusNotFound, "No such gallery")
	case errors.Is(err, gallery.ErrPhotoNotFound):
		h.Render.Error(w, r, http.StatusNotFound, "Photo not found")
	case r.Context().Err() != nil:
		// client went away; nothing to render
	default:
		h.Render.Error(w, r, http.StatusBadGateway, "Photos could not be loaded. Please try again later.")
	}
}

// NotFound renders the 404 page for unmatched routes.
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Render.Error(w, r, http.StatusNotFound, "Page not found")
}
