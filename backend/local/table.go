package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/database"
	"github.com/mjbphoto/gallery/models"
)

// Table serves the photos table from a SQL database.
type Table struct {
	db  *database.DB
	now func() time.Time
}

func NewTable(db *database.DB) *Table {
	return &Table{db: db, now: time.Now}
}

func notFound(err error, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("photo %d: %w", id, backend.ErrNotFound)
	}
	return err
}

func (t *Table) Select(ctx context.Context, q backend.Query) ([]models.Photo, error) {
	return database.ListPhotos(ctx, t.db, q.Category)
}

func (t *Table) Get(ctx context.Context, id int64) (models.Photo, error) {
	p, err := database.GetPhoto(ctx, t.db, id)
	if err != nil {
		return models.Photo{}, notFound(err, id)
	}
	return p, nil
}

func (t *Table) Insert(ctx context.Context, np models.NewPhoto) (models.Photo, error) {
	return database.InsertPhoto(ctx, t.db, np, t.now())
}

func (t *Table) Update(ctx context.Context, id int64, fields models.PhotoFields) error {
	return notFound(database.UpdatePhotoFields(ctx, t.db, id, fields), id)
}

func (t *Table) Delete(ctx context.Context, id int64) error {
	return notFound(database.DeletePhoto(ctx, t.db, id), id)
}
