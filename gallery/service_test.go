package gallery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjbphoto/gallery/backend"
	"github.com/mjbphoto/gallery/backend/backendtest"
	"github.com/mjbphoto/gallery/cache"
	"github.com/mjbphoto/gallery/logging"
	"github.com/mjbphoto/gallery/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func seed() []models.Photo {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []models.Photo{
		{ID: 1, URL: "u1", Title: "Harbor", Category: models.CategoryJeju, CreatedAt: base},
		{ID: 2, URL: "u2", Title: "Snow", Category: models.CategorySapporo, CreatedAt: base.Add(time.Hour)},
		{ID: 3, URL: "u3", Title: "Cliffs", Category: models.CategoryJeju, CreatedAt: base.Add(2 * time.Hour)},
	}
}

func newService(t *testing.T, photos ...models.Photo) (*Service, *backendtest.Recorder, *backendtest.Table, *clock) {
	t.Helper()
	rec := &backendtest.Recorder{}
	table := backendtest.NewTable(rec, photos...)
	clk := &clock{now: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewService(table, cache.NewMemoryWithClock(clk.Now), 5*time.Minute, logging.Nop())
	return svc, rec, table, clk
}

func TestCategoryFiltersByUpperCaseValue(t *testing.T) {
	svc, rec, _, _ := newService(t, seed()...)

	category, photos, err := svc.Category(context.Background(), "jeju")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryJeju, category)
	assert.Equal(t, []string{"select JEJU"}, rec.Ops())
	require.Len(t, photos, 2)
	assert.Equal(t, int64(3), photos[0].ID)
	assert.Equal(t, int64(1), photos[1].ID)
}

func TestEveryCategoryQueriesItsOwnValue(t *testing.T) {
	for _, c := range models.Categories {
		t.Run(string(c), func(t *testing.T) {
			svc, rec, _, _ := newService(t, seed()...)

			got, photos, err := svc.Category(context.Background(), strings.ToLower(string(c)))
			require.NoError(t, err)
			assert.Equal(t, c, got)
			assert.Equal(t, []string{"select " + string(c)}, rec.Ops())
			for _, p := range photos {
				assert.Equal(t, c, p.Category)
			}
		})
	}
}

func TestCategoryEmptyIsNotAnError(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, photos, err := svc.Category(context.Background(), "sapporo")
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestUnknownCategoryMakesNoRequest(t *testing.T) {
	svc, rec, _, _ := newService(t, seed()...)

	_, _, err := svc.Category(context.Background(), "tokyo")
	assert.ErrorIs(t, err, ErrUnknownCategory)
	assert.Empty(t, rec.Ops())
}

func TestCategoryServedFromCacheWithinTTL(t *testing.T) {
	svc, rec, _, clk := newService(t, seed()...)
	ctx := context.Background()

	_, _, err := svc.Category(ctx, "jeju")
	require.NoError(t, err)
	clk.Advance(4 * time.Minute)
	_, photos, err := svc.Category(ctx, "JEJU")
	require.NoError(t, err)
	assert.Len(t, photos, 2)
	assert.Equal(t, []string{"select JEJU"}, rec.Ops())

	clk.Advance(2 * time.Minute)
	_, _, err = svc.Category(ctx, "jeju")
	require.NoError(t, err)
	assert.Equal(t, []string{"select JEJU", "select JEJU"}, rec.Ops())
}

func TestCategoryErrorsAreNotCached(t *testing.T) {
	svc, rec, table, _ := newService(t, seed()...)
	ctx := context.Background()

	table.FailSelect(errors.New("unreachable"))
	_, _, err := svc.Category(ctx, "jeju")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownCategory)

	table.FailSelect(nil)
	_, photos, err := svc.Category(ctx, "jeju")
	require.NoError(t, err)
	assert.Len(t, photos, 2)
	assert.Len(t, rec.Ops(), 2)
}

type gatedTable struct {
	backend.PhotoTable
	gate    chan struct{}
	selects atomic.Int32
}

func (g *gatedTable) Select(ctx context.Context, q backend.Query) ([]models.Photo, error) {
	g.selects.Add(1)
	<-g.gate
	return g.PhotoTable.Select(ctx, q)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	gated := &gatedTable{PhotoTable: backendtest.NewTable(nil, seed()...), gate: make(chan struct{})}
	svc := NewService(gated, cache.NewMemory(), time.Minute, logging.Nop())

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, photos, err := svc.Category(context.Background(), "jeju")
			if err == nil {
				results[i] = len(photos)
			}
		}(i)
	}

	require.Eventually(t, func() bool { return gated.selects.Load() == 1 }, time.Second, time.Millisecond)
	// let the remaining goroutines reach the shared call
	time.Sleep(20 * time.Millisecond)
	close(gated.gate)
	wg.Wait()

	assert.Equal(t, int32(1), gated.selects.Load())
	for _, n := range results {
		assert.Equal(t, 2, n)
	}
}

func TestPhotoLookupUsesCachedSet(t *testing.T) {
	svc, rec, _, _ := newService(t, seed()...)
	ctx := context.Background()

	_, _, p, err := svc.Photo(ctx, "jeju", 3)
	require.NoError(t, err)
	assert.Equal(t, "Cliffs", p.Title)

	_, _, _, err = svc.Photo(ctx, "jeju", 2)
	assert.ErrorIs(t, err, ErrPhotoNotFound)
	assert.Equal(t, []string{"select JEJU"}, rec.Ops())
}
