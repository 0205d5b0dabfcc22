// Package dashboard implements the admin content workflow: listing photos,
// uploading new ones, editing their fields and deleting them together with
// their stored objects.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/media"
	"github.com/mjbphoto/gallery/models"
)

var (
	ErrNoFile       = errors.New("no photo file selected")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotConfirmed = errors.New("delete not confirmed")
	ErrNotFound     = errors.New("photo not found")
	// ErrRetryable marks a failure after which the same action may be
	// repeated safely.
	ErrRetryable = errors.New("operation can be retried")
)

// compensationTimeout bounds cleanup work that must run even when the
// triggering request has gone away.
const compensationTimeout = 30 * time.Second

type Compressor interface {
	Compress(data io.Reader) (*media.Compressed, error)
}

// Upload is the file part of a create request.
type Upload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

type CreateInput struct {
	Title    string
	Location string
	Category string
	File     *Upload
}

type UpdateInput struct {
	Title    string
	Location string
	Category string
}

type Service struct {
	photos     backend.PhotoTable
	objects    backend.ObjectStore
	compressor Compressor
	log        *zap.SugaredLogger
	now        func() time.Time
	suffix     func() string
}

// NewService wires the dashboard to the backend. compressor may be nil, in
// which case files are uploaded as received.
func NewService(client backend.Client, compressor Compressor, log *zap.SugaredLogger) *Service {
	return &Service{
		photos:     client.Photos,
		objects:    client.Objects,
		compressor: compressor,
		log:        log,
		now:        time.Now,
		suffix:     shortID,
	}
}

// List returns every photo newest first. A failed fetch is logged and
// yields an empty list.
func (s *Service) List(ctx context.Context) []models.Photo {
	photos, err := s.photos.Select(ctx, backend.Query{})
	if err != nil {
		s.log.Errorf("dashboard: failed to load photos: %v", err)
		return []models.Photo{}
	}
	return photos
}

func validateFields(title, location, category string) (models.PhotoFields, error) {
	title = strings.TrimSpace(title)
	location = strings.TrimSpace(location)
	if title == "" || location == "" {
		return models.PhotoFields{}, fmt.Errorf("%w: title and location are required", ErrInvalidInput)
	}
	c, err := models.ParseCategory(category)
	if err != nil {
		return models.PhotoFields{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return models.PhotoFields{Title: title, Location: location, Category: c}, nil
}

// ObjectKey derives the object-store name of a photo from the trailing path
// segment of its public URL: ".../images/42.jpg" -> "42.jpg".
func ObjectKey(publicURL string) string {
	p := publicURL
	if u, err := url.Parse(publicURL); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	key := path.Base(p)
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	if key == "." || key == "/" {
		return ""
	}
	return key
}

type payload struct {
	data        []byte
	contentType string
	ext         string
}

func (s *Service) prepare(up *Upload) (*payload, error) {
	raw, err := io.ReadAll(up.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoFile
	}

	original := &payload{
		data:        raw,
		contentType: up.ContentType,
		ext:         strings.ToLower(filepath.Ext(up.Filename)),
	}
	if s.compressor == nil {
		return original, nil
	}

	compressed, err := s.compressor.Compress(bytes.NewReader(raw))
	if err != nil {
		if errors.Is(err, media.ErrUndecodable) && (media.IsImageContentType(up.ContentType) || media.IsRasterImage(up.Filename)) {
			s.log.Warnf("dashboard: %s could not be compressed, uploading original: %v", up.Filename, err)
			return original, nil
		}
		if errors.Is(err, media.ErrUndecodable) {
			return nil, fmt.Errorf("%w: %s is not an image", ErrInvalidInput, up.Filename)
		}
		return nil, fmt.Errorf("failed to compress %s: %w", up.Filename, err)
	}
	return &payload{data: compressed.Data, contentType: compressed.ContentType, ext: compressed.Extension}, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}

// objectName is time based and ignores the uploaded filename. The random
// suffix separates uploads landing in the same millisecond.
func (s *Service) objectName(ext string) string {
	return strconv.FormatInt(s.now().UnixMilli(), 10) + "-" + s.suffix() + ext
}

// Create stores the file, then inserts the row pointing at its public URL.
// When the insert fails the stored object is removed again.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Photo, error) {
	if in.File == nil || in.File.Data == nil {
		return models.Photo{}, ErrNoFile
	}
	fields, err := validateFields(in.Title, in.Location, in.Category)
	if err != nil {
		return models.Photo{}, err
	}

	p, err := s.prepare(in.File)
	if err != nil {
		return models.Photo{}, err
	}

	name := s.objectName(p.ext)
	if err := s.objects.Upload(ctx, name, p.contentType, bytes.NewReader(p.data)); err != nil {
		s.log.Errorf("dashboard: upload of %s failed: %v", name, err)
		return models.Photo{}, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	publicURL := s.objects.PublicURL(name)

	created, err := s.photos.Insert(ctx, models.NewPhoto{URL: publicURL, PhotoFields: fields})
	if err != nil {
		s.log.Errorf("dashboard: insert for %s failed, removing uploaded object: %v", name, err)
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()
		if rmErr := s.objects.Remove(cctx, name); rmErr != nil {
			s.log.Errorf("dashboard: object %s is orphaned, cleanup failed: %v", name, rmErr)
		}
		return models.Photo{}, fmt.Errorf("failed to save photo record: %w", err)
	}

	s.log.Infof("dashboard: created photo %d (%s, %d bytes)", created.ID, name, len(p.data))
	return created, nil
}

// Update changes title, location and category of photo id. The stored
// object and URL are left untouched.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (models.PhotoFields, error) {
	fields, err := validateFields(in.Title, in.Location, in.Category)
	if err != nil {
		return models.PhotoFields{}, err
	}
	if err := s.photos.Update(ctx, id, fields); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return models.PhotoFields{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		s.log.Errorf("dashboard: update of photo %d failed: %v", id, err)
		return models.PhotoFields{}, fmt.Errorf("failed to update photo %d: %w", id, err)
	}
	s.log.Infof("dashboard: updated photo %d", id)
	return fields, nil
}

// Get returns one photo or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (models.Photo, error) {
	p, err := s.photos.Get(ctx, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return models.Photo{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return models.Photo{}, fmt.Errorf("failed to load photo %d: %w", id, err)
	}
	return p, nil
}

// Delete removes the stored object (best effort) and then the row. A row
// failure is returned as ErrRetryable: the object may already be gone while
// the row still references it.
func (s *Service) Delete(ctx context.Context, photo models.Photo) error {
	if key := ObjectKey(photo.URL); key != "" {
		if err := s.objects.Remove(ctx, key); err != nil {
			s.log.Errorf("dashboard: failed to remove object %s of photo %d: %v", key, photo.ID, err)
		}
	} else {
		s.log.Warnf("dashboard: photo %d has no object key in url %q", photo.ID, photo.URL)
	}

	if err := s.photos.Delete(ctx, photo.ID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrNotFound, photo.ID)
		}
		s.log.Errorf("dashboard: failed to delete photo row %d: %v", photo.ID, err)
		return fmt.Errorf("%w: failed to delete photo %d: %w", ErrRetryable, photo.ID, err)
	}
	s.log.Infof("dashboard: deleted photo %d", photo.ID)
	return nil
}
