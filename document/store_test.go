package document

import (
	"context"
	"errors"
	"testing"
)

func TestPrefixStore_ResolveURL(t *testing.T) {
	s := NewPrefixStore("https://docs.example.com/files/")

	u, err := s.ResolveURL(context.Background(), "passport scan.pdf")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if u != "https://docs.example.com/files/passport%20scan.pdf" {
		t.Fatalf("unexpected url %q", u)
	}

	if _, err := s.ResolveURL(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty ref, got %v", err)
	}
}

func TestMemoryStore_ResolveURL(t *testing.T) {
	s := NewMemoryStore()
	s.Put("doc-1", "https://cdn.example.com/doc-1")

	u, err := s.ResolveURL(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if u != "https://cdn.example.com/doc-1" {
		t.Fatalf("unexpected url %q", u)
	}

	if _, err := s.ResolveURL(context.Background(), "doc-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
