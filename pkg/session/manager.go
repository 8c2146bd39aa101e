package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/policyassist/policyassist/pkg/store"
	"go.uber.org/zap"
)

// Manager owns the current Session.
// Manager is safe for concurrent use.
type Manager struct {
	backend store.Backend
	logger  *zap.Logger

	mu      sync.RWMutex
	current Session
	version uint64

	// persistMu orders writes to the backend in replacement order.
	persistMu  sync.Mutex
	persistErr error

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager and hydrates it from backend with a single read.
// A malformed stored record is discarded and the manager starts empty.
func NewManager(ctx context.Context, backend store.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		logger:      zap.NewNop(),
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.current = m.hydrate(ctx)
	return m
}

func (m *Manager) hydrate(ctx context.Context) Session {
	data, err := m.backend.Load(ctx, store.KeySession)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("session hydration failed", zap.Error(err))
		}
		return Session{}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		m.discard(ctx, err)
		return Session{}
	}
	s, err := rec.session()
	if err != nil {
		m.discard(ctx, err)
		return Session{}
	}
	return s
}

func (m *Manager) discard(ctx context.Context, cause error) {
	m.logger.Warn("discarding malformed stored session", zap.Error(cause))
	if err := m.backend.Clear(ctx, store.KeySession, store.KeyToken); err != nil {
		m.logger.Warn("clear malformed session failed", zap.Error(err))
	}
}

// Login replaces the session with id and persists it.
// Invalid identities are rejected and the current session is left untouched.
// Persistence failures are logged, never returned: the in-memory session stays authoritative.
func (m *Manager) Login(ctx context.Context, id Session) error {
	if !id.IsAuthenticated() {
		return fmt.Errorf("%w: missing token", ErrInvalidIdentity)
	}
	if err := id.Validate(); err != nil {
		return err
	}
	m.replace(ctx, id)
	return nil
}

// Logout replaces the session with the empty record and clears both persisted keys.
func (m *Manager) Logout(ctx context.Context) {
	m.replace(ctx, Session{})
}

func (m *Manager) replace(ctx context.Context, s Session) {
	m.persistMu.Lock()

	m.mu.Lock()
	m.current = s
	m.version++
	snap := Snapshot{Session: s, Version: m.version}
	m.mu.Unlock()

	err := m.persist(ctx, s)
	m.persistErr = err
	m.persistMu.Unlock()

	if err != nil {
		m.logger.Warn("session persistence failed", zap.Error(err), zap.Uint64("version", snap.Version))
	}
	m.notify(snap)
}

func (m *Manager) persist(ctx context.Context, s Session) error {
	if !s.IsAuthenticated() {
		return m.backend.Clear(ctx, store.KeySession, store.KeyToken)
	}

	data, err := json.Marshal(toRecord(s))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := m.backend.Save(ctx, store.KeySession, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := m.backend.Save(ctx, store.KeyToken, []byte(s.Token)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Current returns the live session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the live session and its version.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Session: m.current, Version: m.version}
}

// IsAuthenticated reports whether a token is present.
func (m *Manager) IsAuthenticated() bool { return m.Current().IsAuthenticated() }

// IsStaff reports whether the current role is admin or staff.
func (m *Manager) IsStaff() bool { return m.Current().IsStaff() }

// IsPolicyholder reports whether the current role is policyholder.
func (m *Manager) IsPolicyholder() bool { return m.Current().IsPolicyholder() }

// Token returns the in-memory bearer token. It satisfies gateway.TokenSource.
func (m *Manager) Token(ctx context.Context) (string, error) {
	return m.Current().Token, nil
}

// PersistError returns the error of the most recent persistence attempt, if any.
func (m *Manager) PersistError() error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.persistErr
}

// Subscribe registers fn to be called after every replacement.
// The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subscribers, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify(snap Snapshot) {
	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
