// Package paging keeps page-cursor state for server-paginated lists.
//
// The last SetPage or Refresh wins: each fetch carries a sequence number and
// a response whose number is no longer the latest is discarded. A failed
// fetch keeps the previously loaded items.
package paging

import (
	"context"
	"sync"

	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/observability"
	"go.uber.org/zap"
)

// Page is one server response.
type Page[T any] struct {
	Items []T
	Total int
}

// Fetch loads page (1-based) of size pageSize under filter.
type Fetch[T any, F comparable] func(ctx context.Context, page, pageSize int, filter F) (Page[T], error)

// Cursor is the visible list state.
type Cursor[T any, F comparable] struct {
	Page     int
	PageSize int
	Total    int
	Filter   F
	Items    []T
	Loading  bool
	// Err is the last fetch failure; Items still holds the prior page.
	Err error
	// Version increases with every state change.
	Version uint64
}

// TotalPages is ceil(Total / PageSize).
func (c Cursor[T, F]) TotalPages() int {
	return totalPages(c.Total, c.PageSize)
}

// HasPrev reports whether a previous page exists.
func (c Cursor[T, F]) HasPrev() bool { return c.Page > 1 }

// HasNext reports whether a next page exists.
func (c Cursor[T, F]) HasNext() bool { return c.Page < c.TotalPages() }

func totalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Controller is safe for concurrent use.
type Controller[T any, F comparable] struct {
	fetch    Fetch[T, F]
	name     string
	logger   *zap.Logger
	onChange func(Cursor[T, F])

	mu      sync.Mutex
	seq     uint64
	version uint64
	state   Cursor[T, F]

	emitMu    sync.Mutex
	delivered uint64
}

// Option configures a Controller.
type Option[T any, F comparable] func(*Controller[T, F])

// WithName labels stale-response metrics and logs.
func WithName[T any, F comparable](name string) Option[T, F] {
	return func(c *Controller[T, F]) { c.name = name }
}

// WithLogger sets the logger.
func WithLogger[T any, F comparable](l *zap.Logger) Option[T, F] {
	return func(c *Controller[T, F]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFilter sets the initial filter.
func WithFilter[T any, F comparable](f F) Option[T, F] {
	return func(c *Controller[T, F]) { c.state.Filter = f }
}

// WithOnChange registers fn to receive state changes in Version order. fn
// runs outside the controller's lock but must not call SetPage, Refresh or
// Reload.
func WithOnChange[T any, F comparable](fn func(Cursor[T, F])) Option[T, F] {
	return func(c *Controller[T, F]) { c.onChange = fn }
}

// New creates a Controller with a fixed page size. Nothing is fetched until
// the first SetPage, Refresh or Reload.
func New[T any, F comparable](fetch Fetch[T, F], pageSize int, opts ...Option[T, F]) *Controller[T, F] {
	if pageSize <= 0 {
		pageSize = 25
	}
	c := &Controller[T, F]{
		fetch:  fetch,
		name:   "list",
		logger: zap.NewNop(),
		state:  Cursor[T, F]{Page: 1, PageSize: pageSize},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPage moves to page n, clamped to [1, max(1, TotalPages)], and fetches it.
func (c *Controller[T, F]) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if last := totalPages(c.state.Total, c.state.PageSize); n > last {
		n = last
	}
	if n < 1 {
		n = 1
	}
	c.state.Page = n
	return c.startLocked(ctx)
}

// Next moves one page forward if possible.
func (c *Controller[T, F]) Next(ctx context.Context) error {
	return c.SetPage(ctx, c.Current().Page+1)
}

// Prev moves one page back if possible.
func (c *Controller[T, F]) Prev(ctx context.Context) error {
	return c.SetPage(ctx, c.Current().Page-1)
}

// Refresh applies filter and fetches. A changed filter resets to page 1.
func (c *Controller[T, F]) Refresh(ctx context.Context, filter F) error {
	c.mu.Lock()
	if filter != c.state.Filter {
		c.state.Filter = filter
		c.state.Page = 1
	}
	return c.startLocked(ctx)
}

// Reload fetches the current page and filter again.
func (c *Controller[T, F]) Reload(ctx context.Context) error {
	c.mu.Lock()
	return c.startLocked(ctx)
}

// startLocked issues the fetch for the current state. c.mu must be held; it
// is released before the fetch runs.
func (c *Controller[T, F]) startLocked(ctx context.Context) error {
	c.seq++
	seq := c.seq
	page, size, filter := c.state.Page, c.state.PageSize, c.state.Filter
	c.state.Loading = true
	snap := c.stampLocked()
	c.mu.Unlock()
	c.emit(snap)

	ctx, span := tracing.StartSpan(ctx, "paging.fetch", map[string]any{"list": c.name, "page": page})
	defer span.End()

	result, err := c.fetch(ctx, page, size, filter)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		observability.RecordStaleResponse(c.name)
		c.logger.Debug("discarding stale page", zap.String("list", c.name), zap.Int("page", page), zap.Uint64("seq", seq))
		return nil
	}
	c.state.Loading = false
	if err != nil {
		span.SetError(err)
		c.logger.Debug("page fetch failed", zap.String("list", c.name), zap.Int("page", page), zap.Error(err))
		c.state.Err = err
	} else {
		c.state.Items = result.Items
		c.state.Total = result.Total
		c.state.Err = nil
		if last := max(1, totalPages(result.Total, size)); c.state.Page > last {
			// The list shrank past the current page.
			c.logger.Debug("page out of range, clamping", zap.String("list", c.name), zap.Int("page", page), zap.Int("last", last))
			c.state.Page = last
			return c.startLocked(ctx)
		}
	}
	snap = c.stampLocked()
	c.mu.Unlock()
	c.emit(snap)
	return err
}

// Current returns the visible state.
func (c *Controller[T, F]) Current() Cursor[T, F] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T, F]) snapshotLocked() Cursor[T, F] {
	s := c.state
	s.Items = append([]T(nil), c.state.Items...)
	return s
}

// stampLocked records a state change and returns its snapshot.
func (c *Controller[T, F]) stampLocked() Cursor[T, F] {
	c.version++
	c.state.Version = c.version
	return c.snapshotLocked()
}

// emit delivers s unless a newer snapshot already went out.
func (c *Controller[T, F]) emit(s Cursor[T, F]) {
	if c.onChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if s.Version <= c.delivered {
		return
	}
	c.delivered = s.Version
	c.onChange(s)
}
