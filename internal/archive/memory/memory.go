// Package memory keeps archived artifacts in memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Archive stores artifacts in a map and hands back memory:// URIs.
type Archive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory archive.
func New() *Archive {
	return &Archive{data: make(map[string][]byte)}
}

// Put copies the content under key. Re-putting a key replaces its content.
func (a *Archive) Put(_ context.Context, key string, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns a copy of the stored content.
func (a *Archive) Get(key string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports how many artifacts are stored.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}
