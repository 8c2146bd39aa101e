// Package store provides the key-value persistence that survives process restarts.
// A store is scoped to a namespace, the equivalent of a browser origin: every key
// written by one API deployment lives apart from keys written for another.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Common errors for storage operations.
var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("key not found")
	// ErrStoreClosed is returned when operating on a closed backend.
	ErrStoreClosed = errors.New("store backend is closed")
	// ErrInvalidNamespace is returned when a namespace contains unsafe characters.
	ErrInvalidNamespace = errors.New("invalid namespace: contains path separator or traversal sequence")
)

// Backend abstracts key-value persistence.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Load returns the value stored under key.
	// Returns ErrNotFound if the key is absent.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save creates or replaces the value stored under key.
	Save(ctx context.Context, key string, value []byte) error

	// Clear removes the given keys. Missing keys are ignored.
	Clear(ctx context.Context, keys ...string) error

	// Close releases any resources held by the backend.
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg Config) (Backend, error) {
	cfg = cfg.withDefaults()
	if err := validateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return NewFileBackend(cfg.BaseDir, cfg.Namespace)
	case "redis":
		return NewRedisBackend(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   "policyassist:" + cfg.Namespace + ":",
			TTL:      cfg.Redis.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// NamespaceFor derives the origin-scoped namespace for an API base URL.
// Scheme and host are kept; everything else is dropped.
func NamespaceFor(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "default"
	}

	raw := u.Scheme + "_" + u.Host
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.ToLower(b.String())
}

// validateNamespace checks that a namespace is safe to use as a path component.
func validateNamespace(ns string) error {
	if ns == "" {
		return errors.New("namespace cannot be empty")
	}
	if strings.ContainsAny(ns, `/\`) || strings.Contains(ns, "..") {
		return ErrInvalidNamespace
	}
	return nil
}
