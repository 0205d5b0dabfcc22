// Package gallery serves the public category galleries. Result sets are
// cached per category for a fixed window; admin changes show up once the
// window has passed.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/cache"
	"github.com/mjbphoto/gallery/models"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrPhotoNotFound   = errors.New("photo not found")
)

const fetchTimeout = 15 * time.Second

type Service struct {
	photos backend.PhotoTable
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	log    *zap.SugaredLogger
}

func NewService(photos backend.PhotoTable, c cache.Cache, ttl time.Duration, log *zap.SugaredLogger) *Service {
	return &Service{photos: photos, cache: c, ttl: ttl, log: log}
}

// ResolveCategory maps a route segment ("jeju", "Jeju") to its stored value.
func ResolveCategory(segment string) (models.Category, error) {
	c, err := models.ParseCategory(strings.ToLower(segment))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, segment)
	}
	return c, nil
}

func cacheKey(c models.Category) string {
	return "gallery:" + string(c)
}

// Category returns the photos of the gallery named by segment, newest first.
// An unknown segment fails with ErrUnknownCategory before any backend call.
func (s *Service) Category(ctx context.Context, segment string) (models.Category, []models.Photo, error) {
	category, err := ResolveCategory(segment)
	if err != nil {
		return "", nil, err
	}

	key := cacheKey(category)
	if photos, ok := s.cached(ctx, key); ok {
		return category, photos, nil
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		// the shared fetch outlives any single waiting request
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		photos, err := s.photos.Select(fetchCtx, backend.Query{Category: category})
		if err != nil {
			return nil, err
		}
		s.store(fetchCtx, key, photos)
		return photos, nil
	})

	select {
	case <-ctx.Done():
		return category, nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.log.Errorf("gallery: failed to fetch %s: %v", category, res.Err)
			return category, nil, fmt.Errorf("failed to fetch %s gallery: %w", category, res.Err)
		}
		return category, res.Val.([]models.Photo), nil
	}
}

// Photo finds one photo of a gallery for the detail overlay, from the same
// cached result set.
func (s *Service) Photo(ctx context.Context, segment string, id int64) (models.Category, []models.Photo, models.Photo, error) {
	category, photos, err := s.Category(ctx, segment)
	if err != nil {
		return category, nil, models.Photo{}, err
	}
	for _, p := range photos {
		if p.ID == id {
			return category, photos, p, nil
		}
	}
	return category, photos, models.Photo{}, fmt.Errorf("%w: %d in %s", ErrPhotoNotFound, id, category)
}

func (s *Service) cached(ctx context.Context, key string) ([]models.Photo, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warnf("gallery: cache read for %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var photos []models.Photo
	if err := json.Unmarshal(raw, &photos); err != nil {
		s.log.Warnf("gallery: discarding unreadable cache entry %s: %v", key, err)
		return nil, false
	}
	return photos, true
}

func (s *Service) store(ctx context.Context, key string, photos []models.Photo) {
	raw, err := json.Marshal(photos)
	if err != nil {
		s.log.Warnf("gallery: failed to encode %s for cache: %v", key, err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.log.Warnf("gallery: cache write for %s failed: %v", key, err)
	}
}
