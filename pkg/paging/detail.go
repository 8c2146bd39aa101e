package paging

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DetailFetch loads the detail record for id.
type DetailFetch[D any] func(ctx context.Context, id string) (D, error)

// Details expands one list row at a time. Fetched details are cached for
// the lifetime of the Details; collapsing and re-expanding a row reuses the
// cached value. A failed fetch leaves the row expanded with no detail.
type Details[D any] struct {
	fetch  DetailFetch[D]
	cache  *cache.Cache
	logger *zap.Logger

	mu       sync.Mutex
	expanded string
	seq      uint64
}

// NewDetails creates a Details.
func NewDetails[D any](fetch DetailFetch[D], logger *zap.Logger) *Details[D] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Details[D]{
		fetch:  fetch,
		cache:  cache.New(cache.NoExpiration, 0),
		logger: logger,
	}
}

// Toggle expands id, or collapses it if it is already expanded. It returns
// the detail and whether it is available; ok is false after a collapse or a
// failed fetch.
func (d *Details[D]) Toggle(ctx context.Context, id string) (detail D, ok bool) {
	d.mu.Lock()
	if d.expanded == id {
		d.expanded = ""
		d.seq++
		d.mu.Unlock()
		return detail, false
	}
	d.expanded = id
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	if v, found := d.cache.Get(id); found {
		return v.(D), true
	}
	return d.load(ctx, id, seq)
}

// Refresh re-fetches id, replacing any cached value, and expands it.
func (d *Details[D]) Refresh(ctx context.Context, id string) (D, bool) {
	d.mu.Lock()
	d.expanded = id
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	d.cache.Delete(id)
	return d.load(ctx, id, seq)
}

func (d *Details[D]) load(ctx context.Context, id string, seq uint64) (detail D, ok bool) {
	v, err := d.fetch(ctx, id)
	if err != nil {
		d.logger.Debug("detail fetch failed", zap.String("id", id), zap.Error(err))
		return detail, false
	}
	d.cache.Set(id, v, cache.NoExpiration)

	d.mu.Lock()
	current := d.seq == seq && d.expanded == id
	d.mu.Unlock()
	if !current {
		return detail, false
	}
	return v, true
}

// Expanded returns the expanded id, or "".
func (d *Details[D]) Expanded() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expanded
}

// Detail returns the cached detail of the expanded row.
func (d *Details[D]) Detail() (detail D, ok bool) {
	id := d.Expanded()
	if id == "" {
		return detail, false
	}
	if v, found := d.cache.Get(id); found {
		return v.(D), true
	}
	return detail, false
}

// Cached reports whether id has a cached detail.
func (d *Details[D]) Cached(id string) bool {
	_, found := d.cache.Get(id)
	return found
}

// Collapse closes the expanded row.
func (d *Details[D]) Collapse() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expanded = ""
	d.seq++
}
