package dashboard

import (
	"context"
	"errors"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/models"
)

// Form buffers the upload form fields of one dashboard screen.
type Form struct {
	Title    string
	Location string
	Category models.Category
}

// EmptyForm is the form as first shown: blank fields, first category.
func EmptyForm() Form {
	return Form{Category: models.Categories[0]}
}

// Dashboard is the state of one admin screen: the photo list and the upload
// form. After every successful mutation the list is re-fetched; when that
// fetch fails, the change the backend confirmed is applied to the list held
// here instead.
type Dashboard struct {
	Photos []models.Photo
	Form   Form
	// Loaded is false until the list has been fetched at least once.
	Loaded bool

	svc *Service
}

// Load fetches the list for a new dashboard screen.
func (s *Service) Load(ctx context.Context) *Dashboard {
	d := s.Blank()
	d.Refresh(ctx)
	return d
}

// Blank is a dashboard screen whose list has not been fetched. Mutations
// start from it so that rejected input never reaches the backend.
func (s *Service) Blank() *Dashboard {
	return &Dashboard{Photos: []models.Photo{}, Form: EmptyForm(), svc: s}
}

// Refresh replaces the list with a fresh fetch.
func (d *Dashboard) Refresh(ctx context.Context) {
	d.Photos = d.svc.List(ctx)
	d.Loaded = true
}

// IsRejected reports whether err is a refusal made before any backend
// request: a missing file, invalid fields or an unconfirmed delete.
func IsRejected(err error) bool {
	return errors.Is(err, ErrNoFile) || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotConfirmed)
}

// Photo finds id in the loaded list, falling back to the backend.
func (d *Dashboard) Photo(ctx context.Context, id int64) (models.Photo, error) {
	for _, p := range d.Photos {
		if p.ID == id {
			return p, nil
		}
	}
	return d.svc.Get(ctx, id)
}

// Submit creates a photo from the upload form. On success the form is
// reset; on failure it keeps the submitted text fields.
func (d *Dashboard) Submit(ctx context.Context, in CreateInput) error {
	created, err := d.svc.Create(ctx, in)
	if err != nil {
		d.Form = Form{Title: in.Title, Location: in.Location, Category: models.Category(in.Category)}
		if c, perr := models.ParseCategory(in.Category); perr == nil {
			d.Form.Category = c
		}
		return err
	}

	d.Form = EmptyForm()
	d.reconcile(ctx, func(photos []models.Photo) []models.Photo {
		return append([]models.Photo{created}, models.WithoutID(photos, created.ID)...)
	})
	return nil
}

// Edit updates the editable fields of photo id.
func (d *Dashboard) Edit(ctx context.Context, id int64, in UpdateInput) error {
	fields, err := d.svc.Update(ctx, id, in)
	if err != nil {
		return err
	}
	d.reconcile(ctx, func(photos []models.Photo) []models.Photo {
		out := append([]models.Photo(nil), photos...)
		for i := range out {
			if out[i].ID == id {
				out[i].Title = fields.Title
				out[i].Location = fields.Location
				out[i].Category = fields.Category
			}
		}
		return out
	})
	return nil
}

// Remove deletes photo id after interactive confirmation.
func (d *Dashboard) Remove(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	photo, err := d.Photo(ctx, id)
	if err != nil {
		return err
	}
	if err := d.svc.Delete(ctx, photo); err != nil {
		return err
	}
	d.reconcile(ctx, func(photos []models.Photo) []models.Photo {
		return models.WithoutID(photos, id)
	})
	return nil
}

func (d *Dashboard) reconcile(ctx context.Context, patch func([]models.Photo) []models.Photo) {
	photos, err := d.svc.photos.Select(ctx, backend.Query{})
	if err != nil {
		d.svc.log.Warnf("dashboard: re-fetch after change failed, patching local list: %v", err)
		d.Photos = patch(d.Photos)
		return
	}
	d.Photos = photos
	d.Loaded = true
}
