package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "test:", 0)

	t.Cleanup(func() {
		_ = backend.Close()
	})

	return mr, backend
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fb, err := NewFileBackend(t.TempDir(), "default")
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	_, rb := setupMiniredis(t)

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   fb,
		"redis":  rb,
	}
}

func TestBackend_SaveLoadClear(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Load(ctx, "auth"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load() on empty store error = %v, want ErrNotFound", err)
			}

			if err := b.Save(ctx, "auth", []byte(`{"token":"t"}`)); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := b.Save(ctx, "token", []byte("t")); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := b.Load(ctx, "auth")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if string(got) != `{"token":"t"}` {
				t.Errorf("Load() = %s, want %s", got, `{"token":"t"}`)
			}

			if err := b.Clear(ctx, "auth", "token", "missing"); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			for _, k := range []string{"auth", "token"} {
				if _, err := b.Load(ctx, k); !errors.Is(err, ErrNotFound) {
					t.Errorf("Load(%s) after Clear error = %v, want ErrNotFound", k, err)
				}
			}
		})
	}
}

func TestBackend_Closed(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if err := b.Save(ctx, "k", []byte("v")); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Save() after Close error = %v, want ErrStoreClosed", err)
			}
			if _, err := b.Load(ctx, "k"); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Load() after Close error = %v, want ErrStoreClosed", err)
			}
		})
	}
}

func TestFileBackend_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileBackend(dir, "https_api_example_com")
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if err := first.Save(ctx, "token", []byte("abc")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_ = first.Close()

	second, err := NewFileBackend(dir, "https_api_example_com")
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	got, err := second.Load(ctx, "token")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Load() = %q, want %q", got, "abc")
	}

	info, err := os.Stat(second.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("state file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackend_ClearRemovesEmptyFile(t *testing.T) {
	ctx := context.Background()

	b, err := NewFileBackend(t.TempDir(), "default")
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	_ = b.Save(ctx, "auth", []byte("x"))
	if err := b.Clear(ctx, "auth"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(b.Path()); !os.IsNotExist(err) {
		t.Errorf("expected state file to be removed, stat error = %v", err)
	}
}

func TestFileBackend_CorruptFileIsReplacedOnSave(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "default.json"), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	b, err := NewFileBackend(dir, "default")
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	if _, err := b.Load(ctx, "auth"); err == nil {
		t.Error("expected parse error loading corrupt file")
	}
	if err := b.Save(ctx, "auth", []byte("ok")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := b.Load(ctx, "auth")
	if err != nil || string(got) != "ok" {
		t.Errorf("Load() = %q, %v; want %q, nil", got, err, "ok")
	}
}

func TestNewFileBackend_RejectsTraversal(t *testing.T) {
	for _, ns := range []string{"", "../escape", "a/b", `a\b`} {
		if _, err := NewFileBackend(t.TempDir(), ns); err == nil {
			t.Errorf("NewFileBackend(%q) expected error", ns)
		}
	}
}

func TestRedisBackend_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBackendFromClient(client, "ttl:", time.Hour)
	defer func() { _ = b.Close() }()

	ctx := context.Background()
	if err := b.Save(ctx, "token", []byte("abc")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ttl := mr.TTL("ttl:token"); ttl != time.Hour {
		t.Errorf("TTL = %v, want %v", ttl, time.Hour)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := b.Load(ctx, "token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "memory", cfg: Config{Backend: "memory"}},
		{name: "file", cfg: Config{Backend: "file", BaseDir: t.TempDir(), Namespace: "ns"}},
		{name: "default is file", cfg: Config{BaseDir: t.TempDir()}},
		{name: "redis without addr", cfg: Config{Backend: "redis"}, wantErr: true},
		{name: "unknown", cfg: Config{Backend: "sqlite"}, wantErr: true},
		{name: "bad namespace", cfg: Config{Backend: "memory", Namespace: "../x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if b != nil {
				_ = b.Close()
			}
		})
	}
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := Open(Config{Backend: "redis", Namespace: "ns", Redis: RedisSettings{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = b.Close() }()

	if err := b.Save(context.Background(), "token", []byte("abc")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("policyassist:ns:token") {
		t.Error("expected namespaced key policyassist:ns:token")
	}
}

func TestNamespaceFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://d28pes0iok9s89.cloudfront.net/api/v1", "https_d28pes0iok9s89_cloudfront_net"},
		{"http://localhost:8000", "http_localhost_8000"},
		{"not a url", "default"},
		{"", "default"},
	}
	for _, tt := range tests {
		if got := NamespaceFor(tt.in); got != tt.want {
			t.Errorf("NamespaceFor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenSource(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	src := TokenSource{Backend: b}

	tok, err := src.Token(ctx)
	if err != nil || tok != "" {
		t.Fatalf("Token() on empty store = %q, %v; want \"\", nil", tok, err)
	}

	_ = b.Save(ctx, KeyToken, []byte("bearer-1"))
	tok, err = src.Token(ctx)
	if err != nil || tok != "bearer-1" {
		t.Errorf("Token() = %q, %v; want %q, nil", tok, err, "bearer-1")
	}
}
