// Package debounce coalesces rapidly changing search input into one delayed
// lookup and applies only the response for the latest input.
package debounce

import (
	"context"
	"sync"
	"time"

	"github.com/policyassist/policyassist/pkg/observability"
	"go.uber.org/zap"
)

// DefaultDelay is the quiet period after the last keystroke.
const DefaultDelay = 300 * time.Millisecond

// Lookup fetches results for query.
type Lookup[T any] func(ctx context.Context, query string) (T, error)

// Result is the visible state of a Debouncer.
type Result[T any] struct {
	// Query is the input Value was fetched for.
	Query string
	Value T
	// Err is the most recent lookup failure. Value still holds the previous
	// stable result set.
	Err error
	// Pending is true while the latest input has not settled.
	Pending bool
	// Version increases with every state change.
	Version uint64
}

// Debouncer is safe for concurrent use. Every Input takes a new sequence
// number; a timer or response carrying an older number is discarded.
type Debouncer[T any] struct {
	lookup Lookup[T]
	delay  time.Duration
	empty  func() T
	name   string
	logger *zap.Logger
	notify func(Result[T])

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	seq     uint64
	version uint64
	timer   *time.Timer
	state   Result[T]
	closed  bool

	emitMu    sync.Mutex
	delivered uint64
}

// Option configures a Debouncer.
type Option[T any] func(*Debouncer[T])

// WithDelay overrides DefaultDelay.
func WithDelay[T any](d time.Duration) Option[T] {
	return func(db *Debouncer[T]) {
		if d > 0 {
			db.delay = d
		}
	}
}

// WithEmptyResult makes an empty query apply fn() without a lookup. Without
// it an empty query is looked up immediately, skipping the timer.
func WithEmptyResult[T any](fn func() T) Option[T] {
	return func(db *Debouncer[T]) { db.empty = fn }
}

// WithName labels stale-response metrics and logs.
func WithName[T any](name string) Option[T] {
	return func(db *Debouncer[T]) { db.name = name }
}

// WithLogger sets the logger.
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(db *Debouncer[T]) {
		if l != nil {
			db.logger = l
		}
	}
}

// WithOnChange registers fn to receive state changes in Version order. fn
// runs outside the Debouncer's lock but must not call Input, Flush or Close.
func WithOnChange[T any](fn func(Result[T])) Option[T] {
	return func(db *Debouncer[T]) { db.notify = fn }
}

// New creates a Debouncer around lookup.
func New[T any](lookup Lookup[T], opts ...Option[T]) *Debouncer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	db := &Debouncer[T]{
		lookup: lookup,
		delay:  DefaultDelay,
		name:   "search",
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Input records a keystroke. A non-empty query is looked up after the quiet
// period; an empty query is applied at once.
func (db *Debouncer[T]) Input(query string) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return
	}
	db.seq++
	seq := db.seq
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.state.Pending = true

	if query == "" {
		if db.empty != nil {
			db.state = Result[T]{Query: "", Value: db.empty()}
			snap := db.snapshotLocked()
			db.mu.Unlock()
			db.emit(snap)
			return
		}
		snap := db.snapshotLocked()
		db.mu.Unlock()
		db.emit(snap)
		go db.run(seq, query)
		return
	}

	db.timer = time.AfterFunc(db.delay, func() { db.run(seq, query) })
	snap := db.snapshotLocked()
	db.mu.Unlock()
	db.emit(snap)
}

// Flush looks up query immediately, superseding any pending input.
func (db *Debouncer[T]) Flush(query string) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return
	}
	db.seq++
	seq := db.seq
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.state.Pending = true
	db.mu.Unlock()

	go db.run(seq, query)
}

func (db *Debouncer[T]) run(seq uint64, query string) {
	if !db.current(seq) {
		return
	}

	value, err := db.lookup(db.ctx, query)

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return
	}
	if seq != db.seq {
		db.mu.Unlock()
		observability.RecordStaleResponse(db.name)
		db.logger.Debug("discarding stale response",
			zap.String("component", db.name),
			zap.String("query", query),
			zap.Uint64("seq", seq))
		return
	}

	db.timer = nil
	if err != nil {
		db.logger.Warn("lookup failed", zap.String("component", db.name), zap.String("query", query), zap.Error(err))
		db.state.Err = err
		db.state.Pending = false
	} else {
		db.state = Result[T]{Query: query, Value: value}
	}
	snap := db.snapshotLocked()
	db.mu.Unlock()
	db.emit(snap)
}

func (db *Debouncer[T]) current(seq uint64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return !db.closed && seq == db.seq
}

// snapshotLocked stamps a new Version on the state and returns a copy.
func (db *Debouncer[T]) snapshotLocked() Result[T] {
	db.version++
	db.state.Version = db.version
	return db.state
}

// emit delivers r unless a newer snapshot already went out.
func (db *Debouncer[T]) emit(r Result[T]) {
	if db.notify == nil {
		return
	}
	db.emitMu.Lock()
	defer db.emitMu.Unlock()
	if r.Version <= db.delivered {
		return
	}
	db.delivered = r.Version
	db.notify(r)
}

// Current returns the visible state.
func (db *Debouncer[T]) Current() Result[T] {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state
}

// Seq returns the sequence number of the latest input.
func (db *Debouncer[T]) Seq() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.seq
}

// Close stops the pending timer and discards responses still in flight.
func (db *Debouncer[T]) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return
	}
	db.closed = true
	if db.timer != nil {
		db.timer.Stop()
		db.timer = nil
	}
	db.cancel()
}
