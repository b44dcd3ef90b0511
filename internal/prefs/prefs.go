// Package prefs provides typed get/set access to a namespaced durable
// key-value store, with JSON storage for composite objects.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/prefs/internal/storage"
)

var tracer = otel.Tracer("github.com/kalambet/prefs/internal/prefs")

// Backend is the durable store a Preferences instance delegates to.
// Implemented by storage.Store, memory.Store and dynamo.Store.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (storage.Record, error)
	Put(ctx context.Context, namespace, key string, r storage.Record) error
	Delete(ctx context.Context, namespace, key string) error
	Clear(ctx context.Context, namespace string) error
	List(ctx context.Context, namespace string) (map[string]storage.Record, error)
}

// Preferences is a typed view over one namespace of a Backend.
type Preferences struct {
	backend Backend
	ns      string
	logger  *slog.Logger
	now     func() time.Time

	// mu serialises writes issued through this instance.
	mu sync.Mutex
}

// Option configures a Preferences instance.
type Option func(*Preferences)

// WithLogger sets the logger used for debug traces and object failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preferences) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp writes.
func WithClock(fn func() time.Time) Option {
	return func(p *Preferences) {
		if fn != nil {
			p.now = fn
		}
	}
}

// New binds a backend to namespace.
func New(b Backend, namespace string, opts ...Option) (*Preferences, error) {
	if b == nil {
		return nil, errors.New("prefs: nil backend")
	}
	if namespace == "" {
		return nil, errors.New("prefs: empty namespace")
	}
	p := &Preferences{
		backend: b,
		ns:      namespace,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Namespace returns the namespace this instance reads and writes.
func (p *Preferences) Namespace() string { return p.ns }

func (p *Preferences) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("prefs.namespace", p.ns)}
	if key != "" {
		attrs = append(attrs, attribute.String("prefs.key", key))
	}
	return tracer.Start(ctx, "prefs."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrKeyAbsent) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Save stores v under key, replacing any previous entry regardless of its
// kind. The replacement is a single upsert, so readers never observe the
// key as absent. A nil v removes the key.
func (p *Preferences) Save(ctx context.Context, key string, v Value) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	if v == nil {
		return p.Remove(ctx, key)
	}

	ctx, span := p.startSpan(ctx, "save", key)
	defer func() { endSpan(span, err) }()

	rec := encodeValue(v)
	rec.UpdatedAt = p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.Put(ctx, p.ns, key, rec); err != nil {
		return &StoreError{Op: "put", Key: key, Err: err}
	}
	p.logger.Debug("preference saved", "namespace", p.ns, "key", key, "kind", v.Kind())
	return nil
}

// SavePref converts x with ValueOf and saves it. Composite values are
// rejected with ErrUnsupportedValueType before the store is touched.
func (p *Preferences) SavePref(ctx context.Context, key string, x any) error {
	if key == "" {
		return ErrEmptyKey
	}
	v, err := ValueOf(x)
	if err != nil {
		return err
	}
	return p.Save(ctx, key, v)
}

// Get returns the value stored under key, or ErrKeyAbsent.
func (p *Preferences) Get(ctx context.Context, key string) (_ Value, err error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	ctx, span := p.startSpan(ctx, "get", key)
	defer func() { endSpan(span, err) }()

	rec, err := p.backend.Get(ctx, p.ns, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrKeyAbsent, key)
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Key: key, Err: err}
	}
	return decodeRecord(key, rec)
}

// GetOr returns the value stored under key, or def when the key is absent.
func (p *Preferences) GetOr(ctx context.Context, key string, def Value) (Value, error) {
	v, err := p.Get(ctx, key)
	if errors.Is(err, ErrKeyAbsent) {
		return def, nil
	}
	return v, err
}

func getTyped[T Value](ctx context.Context, p *Preferences, key string, def T) (T, error) {
	v, err := p.Get(ctx, key)
	if errors.Is(err, ErrKeyAbsent) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	t, ok := v.(T)
	if !ok {
		return def, &TypeMismatchError{Key: key, Want: def.Kind(), Got: v.Kind()}
	}
	return t, nil
}

func (p *Preferences) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := getTyped(ctx, p, key, Bool(def))
	return bool(v), err
}

func (p *Preferences) GetInt(ctx context.Context, key string, def int32) (int32, error) {
	v, err := getTyped(ctx, p, key, Int(def))
	return int32(v), err
}

func (p *Preferences) GetLong(ctx context.Context, key string, def int64) (int64, error) {
	v, err := getTyped(ctx, p, key, Long(def))
	return int64(v), err
}

func (p *Preferences) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	v, err := getTyped(ctx, p, key, Float(def))
	return float64(v), err
}

func (p *Preferences) GetString(ctx context.Context, key string, def string) (string, error) {
	v, err := getTyped(ctx, p, key, String(def))
	return string(v), err
}

// Exists reports whether key has an entry of any kind.
func (p *Preferences) Exists(ctx context.Context, key string) (_ bool, err error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	ctx, span := p.startSpan(ctx, "exists", key)
	defer func() { endSpan(span, err) }()

	_, err = p.backend.Get(ctx, p.ns, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return true, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (p *Preferences) Remove(ctx context.Context, key string) (err error) {
	if key == "" {
		return ErrEmptyKey
	}

	ctx, span := p.startSpan(ctx, "remove", key)
	defer func() { endSpan(span, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.Delete(ctx, p.ns, key); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	p.logger.Debug("preference removed", "namespace", p.ns, "key", key)
	return nil
}

// RemoveAll deletes every entry in the namespace.
func (p *Preferences) RemoveAll(ctx context.Context) (err error) {
	ctx, span := p.startSpan(ctx, "remove_all", "")
	defer func() { endSpan(span, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.Clear(ctx, p.ns); err != nil {
		return &StoreError{Op: "clear", Err: err}
	}
	p.logger.Info("preferences cleared", "namespace", p.ns)
	return nil
}

// All returns every decodable entry in the namespace. Entries that fail to
// decode are logged and skipped; Get on such a key returns the DecodeError.
func (p *Preferences) All(ctx context.Context) (_ map[string]Value, err error) {
	ctx, span := p.startSpan(ctx, "all", "")
	defer func() { endSpan(span, err) }()

	recs, err := p.backend.List(ctx, p.ns)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	out := make(map[string]Value, len(recs))
	for k, r := range recs {
		v, err := decodeRecord(k, r)
		if err != nil {
			p.logger.Warn("malformed preference, skipping", "namespace", p.ns, "key", k, "error", err)
			continue
		}
		out[k] = v
	}
	return out, nil
}
