package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/policyassist/policyassist/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBackend wraps a backend and fails writes on demand.
type failingBackend struct {
	store.Backend
	mu       sync.Mutex
	failSave bool
	loads    int
}

func (f *failingBackend) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	return f.Backend.Load(ctx, key)
}

func (f *failingBackend) Save(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return errors.New("quota exceeded")
	}
	return f.Backend.Save(ctx, key, value)
}

func TestNewManager_EmptyStore(t *testing.T) {
	m := NewManager(context.Background(), store.NewMemoryBackend())

	assert.False(t, m.IsAuthenticated())
	assert.False(t, m.IsStaff())
	assert.False(t, m.IsPolicyholder())
	assert.True(t, m.Current().IsEmpty())
	assert.Equal(t, uint64(0), m.Snapshot().Version)
}

func TestNewManager_SingleHydrationRead(t *testing.T) {
	b := &failingBackend{Backend: store.NewMemoryBackend()}
	m := NewManager(context.Background(), b)

	_ = m.Current()
	_ = m.IsAuthenticated()
	assert.Equal(t, 1, b.loads)
}

func TestManager_LoginPersistsBothKeys(t *testing.T) {
	ctx := context.Background()
	b := store.NewMemoryBackend()
	m := NewManager(ctx, b)

	err := m.Login(ctx, PolicyholderIdentity("tok-1", "tenant-1", "POL-2024-HO-001"))
	require.NoError(t, err)

	assert.True(t, m.IsAuthenticated())
	assert.True(t, m.IsPolicyholder())
	assert.False(t, m.IsStaff())
	assert.Equal(t, "POL-2024-HO-001", m.Current().PolicyNumber)
	assert.Equal(t, uint64(1), m.Snapshot().Version)

	raw, err := b.Load(ctx, store.KeySession)
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"tok-1","tenantId":"tenant-1","role":"policyholder","policyNumber":"POL-2024-HO-001","email":null}`, string(raw))

	tok, err := b.Load(ctx, store.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", string(tok))
}

func TestManager_LogoutClearsBothKeys(t *testing.T) {
	ctx := context.Background()
	b := store.NewMemoryBackend()
	m := NewManager(ctx, b)

	require.NoError(t, m.Login(ctx, StaffIdentity("tok", "tenant", RoleAdmin, "admin@sunshine.test")))
	m.Logout(ctx)

	assert.False(t, m.IsAuthenticated())
	assert.True(t, m.Current().IsEmpty())

	_, err := b.Load(ctx, store.KeySession)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = b.Load(ctx, store.KeyToken)
	assert.ErrorIs(t, err, store.ErrNotFound)

	reloaded := NewManager(ctx, b)
	assert.True(t, reloaded.Current().IsEmpty())
}

func TestManager_ReloadReflectsLastTransition(t *testing.T) {
	ctx := context.Background()
	staff := StaffIdentity("s-tok", "tenant", RoleStaff, "staff@sunshine.test")
	holder := PolicyholderIdentity("p-tok", "tenant", "POL-2024-AU-002")

	sequences := []struct {
		name     string
		steps    []func(*Manager)
		wantAuth bool
		want     Session
	}{
		{
			name:     "login",
			steps:    []func(*Manager){func(m *Manager) { _ = m.Login(ctx, staff) }},
			wantAuth: true,
			want:     staff,
		},
		{
			name: "login then logout",
			steps: []func(*Manager){
				func(m *Manager) { _ = m.Login(ctx, staff) },
				func(m *Manager) { m.Logout(ctx) },
			},
		},
		{
			name: "logout then login twice",
			steps: []func(*Manager){
				func(m *Manager) { m.Logout(ctx) },
				func(m *Manager) { _ = m.Login(ctx, staff) },
				func(m *Manager) { _ = m.Login(ctx, holder) },
			},
			wantAuth: true,
			want:     holder,
		},
		{
			name: "login logout login",
			steps: []func(*Manager){
				func(m *Manager) { _ = m.Login(ctx, holder) },
				func(m *Manager) { m.Logout(ctx) },
				func(m *Manager) { _ = m.Login(ctx, staff) },
			},
			wantAuth: true,
			want:     staff,
		},
	}

	for _, tt := range sequences {
		t.Run(tt.name, func(t *testing.T) {
			b, err := store.NewFileBackend(t.TempDir(), "default")
			require.NoError(t, err)

			m := NewManager(ctx, b)
			for _, step := range tt.steps {
				step(m)
			}

			reloaded := NewManager(ctx, b)
			assert.Equal(t, tt.wantAuth, reloaded.IsAuthenticated())
			assert.Equal(t, tt.want, reloaded.Current())
		})
	}
}

func TestNewManager_MalformedRecordDiscarded(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{broken"},
		{name: "unknown role", raw: `{"token":"t","tenantId":"x","role":"root","policyNumber":null,"email":"a@b"}`},
		{name: "policyholder without policy", raw: `{"token":"t","tenantId":"x","role":"policyholder","policyNumber":null,"email":null}`},
		{name: "staff with policy", raw: `{"token":"t","tenantId":"x","role":"staff","policyNumber":"P","email":"a@b"}`},
		{name: "role without token", raw: `{"token":null,"tenantId":"x","role":"admin","policyNumber":null,"email":"a@b"}`},
		{name: "wrong shape", raw: `["token"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			b := store.NewMemoryBackend()
			require.NoError(t, b.Save(ctx, store.KeySession, []byte(tt.raw)))
			require.NoError(t, b.Save(ctx, store.KeyToken, []byte("t")))

			var m *Manager
			require.NotPanics(t, func() { m = NewManager(ctx, b) })
			assert.True(t, m.Current().IsEmpty())

			_, err := b.Load(ctx, store.KeySession)
			assert.ErrorIs(t, err, store.ErrNotFound)
			_, err = b.Load(ctx, store.KeyToken)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestManager_LoginRejectsInvalidIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, store.NewMemoryBackend())
	require.NoError(t, m.Login(ctx, PolicyholderIdentity("tok", "tenant", "POL-1")))

	invalid := []Session{
		{},
		{Token: "t", TenantID: "x", Role: RolePolicyholder},
		{Token: "t", TenantID: "x", Role: RoleAdmin},
		{Token: "t", Role: RoleStaff, Email: "a@b"},
		{Token: "t", TenantID: "x", Role: RolePolicyholder, PolicyNumber: "P", Email: "a@b"},
		{Token: "t", TenantID: "x", Role: "root", Email: "a@b"},
	}
	for _, id := range invalid {
		err := m.Login(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidIdentity, "identity %+v", id)
	}

	assert.Equal(t, "POL-1", m.Current().PolicyNumber)
	assert.Equal(t, uint64(1), m.Snapshot().Version)
}

func TestManager_PersistenceFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	b := &failingBackend{Backend: store.NewMemoryBackend(), failSave: true}
	m := NewManager(ctx, b)

	err := m.Login(ctx, StaffIdentity("tok", "tenant", RoleStaff, "s@x"))
	require.NoError(t, err)

	assert.True(t, m.IsAuthenticated())
	assert.Error(t, m.PersistError())

	tok, err := m.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestManager_Subscribe(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, store.NewMemoryBackend())

	var got []Snapshot
	unsubscribe := m.Subscribe(func(s Snapshot) { got = append(got, s) })

	require.NoError(t, m.Login(ctx, StaffIdentity("tok", "tenant", RoleAdmin, "a@x")))
	m.Logout(ctx)
	unsubscribe()
	require.NoError(t, m.Login(ctx, StaffIdentity("tok2", "tenant", RoleAdmin, "a@x")))

	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Version)
	assert.True(t, got[0].Session.IsStaff())
	assert.Equal(t, uint64(2), got[1].Version)
	assert.False(t, got[1].Session.IsAuthenticated())
}

func TestManager_ConcurrentReadersNeverSeePartialSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ctx, store.NewMemoryBackend())
	staff := StaffIdentity("s", "tenant", RoleStaff, "s@x")
	holder := PolicyholderIdentity("p", "tenant", "POL-1")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				_ = m.Login(ctx, staff)
			} else {
				_ = m.Login(ctx, holder)
			}
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
			s := m.Current()
			if err := s.Validate(); err != nil {
				t.Fatalf("observed invalid session %+v: %v", s, err)
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []string{"admin", "staff", "policyholder"} {
		got, err := ParseRole(r)
		require.NoError(t, err)
		assert.Equal(t, Role(r), got)
	}
	_, err := ParseRole("superuser")
	assert.Error(t, err)
}

func TestSession_TokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := PolicyholderIdentity(signed, "tenant", "POL-1").TokenExpiry()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = PolicyholderIdentity("opaque-token", "tenant", "POL-1").TokenExpiry()
	assert.False(t, ok)

	_, ok = Session{}.TokenExpiry()
	assert.False(t, ok)
}

func TestSession_MaskedToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"short", "****"},
		{"12345678", "****"},
		{"abcd-middle-wxyz", "abcd****wxyz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Session{Token: tt.token}.MaskedToken(), tt.token)
	}
}
