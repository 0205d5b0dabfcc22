package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/mjbphoto/gallery/models"
)

var photoColumns = []string{"id", "url", "title", "location", "category", "created_at"}

func scanPhoto(row interface{ Scan(...any) error }) (models.Photo, error) {
	var p models.Photo
	var category string
	if err := row.Scan(&p.ID, &p.URL, &p.Title, &p.Location, &category, &p.CreatedAt); err != nil {
		return models.Photo{}, err
	}
	p.Category = models.Category(category)
	return p, nil
}

// ListPhotos returns photos newest first, optionally restricted to one category.
func ListPhotos(ctx context.Context, db *DB, category models.Category) ([]models.Photo, error) {
	queryBuilder := db.psql.Select(photoColumns...).
		From("photos").
		OrderBy("created_at DESC", "id DESC")
	if category != "" {
		queryBuilder = queryBuilder.Where(sq.Eq{"category": string(category)})
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListPhotos: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	photos := []models.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photo rows: %w", err)
	}
	return photos, nil
}

// GetPhoto returns sql.ErrNoRows when the id is unknown.
func GetPhoto(ctx context.Context, db *DB, id int64) (models.Photo, error) {
	sqlStr, args, err := db.psql.Select(photoColumns...).
		From("photos").
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return models.Photo{}, fmt.Errorf("failed to build SQL query for GetPhoto: %w", err)
	}

	p, err := scanPhoto(db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Photo{}, sql.ErrNoRows
		}
		return models.Photo{}, fmt.Errorf("failed to query or scan photo %d: %w", id, err)
	}
	return p, nil
}

// InsertPhoto stores a new row and returns it with its assigned id and
// creation time.
func InsertPhoto(ctx context.Context, db *DB, np models.NewPhoto, createdAt time.Time) (models.Photo, error) {
	sqlStr, args, err := db.psql.Insert("photos").
		Columns("url", "title", "location", "category", "created_at").
		Values(np.URL, np.Title, np.Location, string(np.Category), createdAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return models.Photo{}, fmt.Errorf("failed to build SQL query for InsertPhoto: %w", err)
	}

	var id int64
	if err := db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return models.Photo{}, fmt.Errorf("failed to insert photo: %w", err)
	}

	return models.Photo{
		ID:        id,
		URL:       np.URL,
		Title:     np.Title,
		Location:  np.Location,
		Category:  np.Category,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// UpdatePhotoFields changes title, location and category. The url column is
// never written here.
func UpdatePhotoFields(ctx context.Context, db *DB, id int64, f models.PhotoFields) error {
	sqlStr, args, err := db.psql.Update("photos").
		SetMap(map[string]interface{}{
			"title":    f.Title,
			"location": f.Location,
			"category": string(f.Category),
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for UpdatePhotoFields: %w", err)
	}
	return execAffectingOne(ctx, db, sqlStr, args, id)
}

func DeletePhoto(ctx context.Context, db *DB, id int64) error {
	sqlStr, args, err := db.psql.Delete("photos").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for DeletePhoto: %w", err)
	}
	return execAffectingOne(ctx, db, sqlStr, args, id)
}

func execAffectingOne(ctx context.Context, db Querier, sqlStr string, args []interface{}, id int64) error {
	res, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to execute statement for photo %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for photo %d: %w", id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
