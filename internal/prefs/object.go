package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// StoreObject JSON-encodes obj and saves it as a String under key.
// Encoding happens before the store is touched, so an object that cannot
// be encoded leaves any previous entry in place.
func (p *Preferences) StoreObject(ctx context.Context, key string, obj any) error {
	if key == "" {
		return ErrEmptyKey
	}

	b, err := json.Marshal(obj)
	if err != nil {
		err = &EncodeError{Key: key, Err: err}
		p.logger.Warn("storing object failed", "namespace", p.ns, "key", key, "error", err)
		return err
	}

	if err := p.Save(ctx, key, String(b)); err != nil {
		p.logger.Warn("storing object failed", "namespace", p.ns, "key", key, "error", err)
		return err
	}
	return nil
}

// LoadObject decodes the JSON stored under key into target, which must be a
// pointer. Decoding is strict: fields of the stored document that target
// does not declare are rejected, so a mismatched shape fails with a
// *DecodeError instead of silently yielding a zero value.
//
// Compatibility: a document written by an older struct that still carries
// a field the current struct has dropped no longer loads. Keep removed
// fields on the struct (typed any is enough) until the stored
// objects have been rewritten, or load into a map.
func (p *Preferences) LoadObject(ctx context.Context, key string, target any) error {
	v, err := p.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyAbsent) {
			p.logger.Warn("loading object failed", "namespace", p.ns, "key", key, "error", err)
		}
		return err
	}

	s, ok := v.(String)
	if !ok {
		err := &DecodeError{Key: key, Err: fmt.Errorf("stored value is %s, not a JSON document", v.Kind())}
		p.logger.Warn("loading object failed", "namespace", p.ns, "key", key, "error", err)
		return err
	}

	if err := decodeStrict(string(s), target); err != nil {
		err := &DecodeError{Key: key, Err: err}
		p.logger.Warn("loading object failed", "namespace", p.ns, "key", key, "error", err)
		return err
	}
	return nil
}

// GetObject loads the object stored under key as a T.
func GetObject[T any](ctx context.Context, p *Preferences, key string) (T, error) {
	var out T
	if err := p.LoadObject(ctx, key, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func decodeStrict(doc string, target any) error {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON document")
	}
	return nil
}
