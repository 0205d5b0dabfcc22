package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/models"
)

// Table is the PostgREST view of one table holding photo rows.
type Table struct {
	client *Client
	name   string
}

func NewTable(client *Client, name string) *Table {
	return &Table{client: client, name: name}
}

func (t *Table) path() string {
	return "/rest/v1/" + t.name
}

func idFilter(id int64) url.Values {
	return url.Values{"id": {"eq." + strconv.FormatInt(id, 10)}}
}

func (t *Table) Select(ctx context.Context, q backend.Query) ([]models.Photo, error) {
	query := url.Values{
		"select": {"*"},
		"order":  {"created_at.desc"},
	}
	if q.Category != "" {
		query.Set("category", "eq."+string(q.Category))
	}

	photos := []models.Photo{}
	if err := t.client.do(ctx, request{method: http.MethodGet, path: t.path(), query: query}, &photos); err != nil {
		return nil, fmt.Errorf("failed to select photos: %w", err)
	}
	return photos, nil
}

func (t *Table) Get(ctx context.Context, id int64) (models.Photo, error) {
	query := idFilter(id)
	query.Set("select", "*")
	query.Set("limit", "1")

	var photos []models.Photo
	if err := t.client.do(ctx, request{method: http.MethodGet, path: t.path(), query: query}, &photos); err != nil {
		return models.Photo{}, fmt.Errorf("failed to get photo %d: %w", id, err)
	}
	if len(photos) == 0 {
		return models.Photo{}, fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
	}
	return photos[0], nil
}

var returnRepresentation = map[string]string{"Prefer": "return=representation"}

func (t *Table) Insert(ctx context.Context, np models.NewPhoto) (models.Photo, error) {
	body, err := jsonBody([]models.NewPhoto{np})
	if err != nil {
		return models.Photo{}, err
	}

	var created []models.Photo
	err = t.client.do(ctx, request{
		method:      http.MethodPost,
		path:        t.path(),
		body:        body,
		contentType: "application/json",
		headers:     returnRepresentation,
	}, &created)
	if err != nil {
		return models.Photo{}, fmt.Errorf("failed to insert photo: %w", err)
	}
	if len(created) == 0 {
		return models.Photo{}, fmt.Errorf("insert returned no row")
	}
	return created[0], nil
}

func (t *Table) Update(ctx context.Context, id int64, fields models.PhotoFields) error {
	body, err := jsonBody(fields)
	if err != nil {
		return err
	}

	var updated []models.Photo
	err = t.client.do(ctx, request{
		method:      http.MethodPatch,
		path:        t.path(),
		query:       idFilter(id),
		body:        body,
		contentType: "application/json",
		headers:     returnRepresentation,
	}, &updated)
	if err != nil {
		return fmt.Errorf("failed to update photo %d: %w", id, err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
	}
	return nil
}

func (t *Table) Delete(ctx context.Context, id int64) error {
	var deleted []models.Photo
	err := t.client.do(ctx, request{
		method:  http.MethodDelete,
		path:    t.path(),
		query:   idFilter(id),
		headers: returnRepresentation,
	}, &deleted)
	if err != nil {
		return fmt.Errorf("failed to delete photo %d: %w", id, err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
	}
	return nil
}
