// Package document resolves the opaque evidence references attached to
// milestones and disputes into URLs a caller can fetch. Upload and
// storage of the documents themselves live in a separate service; this
// package only knows how to point at them.
package document

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
)

// ErrNotFound is returned for a reference with no known location.
var ErrNotFound = errors.New("document: reference not found")

// Store maps an evidence reference to a retrievable URL.
type Store interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// PrefixStore resolves references against a fixed base URL, the layout
// used by the document service's public gateway.
type PrefixStore struct {
	base string
}

func NewPrefixStore(base string) *PrefixStore {
	return &PrefixStore{base: strings.TrimRight(base, "/")}
}

func (s *PrefixStore) ResolveURL(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrNotFound
	}
	return s.base + "/" + url.PathEscape(ref), nil
}

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	urls map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{urls: make(map[string]string)}
}

// Put registers a reference.
func (s *MemoryStore) Put(ref, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[ref] = url
}

func (s *MemoryStore) ResolveURL(_ context.Context, ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.urls[ref]
	if !ok {
		return "", ErrNotFound
	}
	return u, nil
}
