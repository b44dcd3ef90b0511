// Package memory provides a process-local preference backend. Nothing
// survives process exit; it backs tests and the "memory" storage backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kalambet/prefs/internal/storage"
)

// Store keeps namespaced records in nested maps guarded by a RWMutex.
type Store struct {
	mu  sync.RWMutex
	ns  map[string]map[string]storage.Record
	now func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the clock used to stamp records written without UpdatedAt.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		ns:  make(map[string]map[string]storage.Record),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, namespace, key string) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.ns[namespace][key]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) Put(_ context.Context, namespace, key string, r storage.Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.ns[namespace]
	if !ok {
		m = make(map[string]storage.Record)
		s.ns[namespace] = m
	}
	m[key] = r
	return nil
}

func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ns[namespace], key)
	return nil
}

func (s *Store) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ns, namespace)
	return nil
}

// List returns a copy of every record in namespace.
func (s *Store) List(_ context.Context, namespace string) (map[string]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.ns[namespace]
	out := make(map[string]storage.Record, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op so the store can stand in wherever a closable backend is expected.
func (s *Store) Close() error { return nil }
