package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend implements Backend using one JSON document per namespace.
// Storage layout:
//
//	~/.policyassist/state/
//	  └── <namespace>.json    # {"auth": "...", "token": "..."}
type FileBackend struct {
	path   string
	mu     sync.RWMutex
	closed bool
}

// NewFileBackend creates a new file-based storage backend.
// If baseDir is empty, uses ~/.policyassist/state.
func NewFileBackend(baseDir, namespace string) (*FileBackend, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{
		path: filepath.Join(baseDir, namespace+".json"),
	}, nil
}

// Path returns the file backing this namespace.
func (f *FileBackend) Path() string {
	return f.path
}

// Load returns the value stored under key.
func (f *FileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}

	doc, err := f.readUnlocked()
	if err != nil {
		return nil, err
	}

	value, ok := doc[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

// Save creates or replaces the value stored under key.
func (f *FileBackend) Save(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}

	doc, err := f.readUnlocked()
	if err != nil {
		// A corrupt document is replaced rather than blocking every write.
		doc = make(map[string]string)
	}
	doc[key] = string(value)

	return f.writeUnlocked(doc)
}

// Clear removes the given keys.
func (f *FileBackend) Clear(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}

	doc, err := f.readUnlocked()
	if err != nil {
		doc = make(map[string]string)
	}
	for _, key := range keys {
		delete(doc, key)
	}

	if len(doc) == 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove state file: %w", err)
		}
		return nil
	}
	return f.writeUnlocked(doc)
}

// Close marks the backend closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileBackend) readUnlocked() (map[string]string, error) {
	doc := make(map[string]string)

	data, err := os.ReadFile(f.path) // #nosec G304 - namespace validated to prevent traversal
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return doc, nil
}

// writeUnlocked replaces the document via rename so readers never see a partial file.
func (f *FileBackend) writeUnlocked(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
