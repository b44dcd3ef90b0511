package prefs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// OpenFunc opens the durable backend for a Holder.
type OpenFunc func(ctx context.Context) (Backend, error)

// Holder owns the single Preferences instance of an application. The
// first successful Init wins; later calls return the same instance without
// reopening the backend. A Holder is created and passed around by its
// owner, there is no package-level instance.
type Holder struct {
	mu      sync.Mutex
	inst    *Preferences
	backend Backend
	opts    []Option
}

// NewHolder returns an empty Holder whose instance will be built with opts.
func NewHolder(opts ...Option) *Holder {
	return &Holder{opts: opts}
}

// NamespaceFor derives the store namespace from an application identity.
func NamespaceFor(appID string) (string, error) {
	ns := strings.TrimSpace(appID)
	if ns == "" {
		return "", errors.New("prefs: empty application id")
	}
	return ns, nil
}

// Init opens the backend and builds the instance on first use.
func (h *Holder) Init(ctx context.Context, appID string, open OpenFunc) (*Preferences, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst != nil {
		return h.inst, nil
	}

	ns, err := NamespaceFor(appID)
	if err != nil {
		return nil, err
	}

	b, err := open(ctx)
	if err != nil {
		return nil, fmt.Errorf("prefs: opening backend: %w", err)
	}

	p, err := New(b, ns, h.opts...)
	if err != nil {
		closeBackend(b)
		return nil, err
	}

	h.inst = p
	h.backend = b
	return p, nil
}

// Instance returns the instance built by Init, or ErrNotInitialized.
func (h *Holder) Instance() (*Preferences, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst == nil {
		return nil, ErrNotInitialized
	}
	return h.inst, nil
}

// Backend returns the backend opened by Init, for callers that serve
// several namespaces from it.
func (h *Holder) Backend() (Backend, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst == nil {
		return nil, ErrNotInitialized
	}
	return h.backend, nil
}

// Close releases the backend if it is closable and empties the Holder.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inst == nil {
		return nil
	}
	err := closeBackend(h.backend)
	h.inst = nil
	h.backend = nil
	return err
}

func closeBackend(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
