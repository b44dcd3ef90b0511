package prefs

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyAbsent is returned when a key has no stored entry.
	ErrKeyAbsent = errors.New("prefs: key absent")
	// ErrEmptyKey is returned for operations given an empty key.
	ErrEmptyKey = errors.New("prefs: empty key")
	// ErrUnsupportedValueType matches *UnsupportedValueTypeError.
	ErrUnsupportedValueType = errors.New("prefs: unsupported value type")
	// ErrTypeMismatch matches *TypeMismatchError.
	ErrTypeMismatch = errors.New("prefs: type mismatch")
	// ErrNotInitialized is returned by Holder.Instance before a successful Init.
	ErrNotInitialized = errors.New("prefs: not initialized")
)

// UnsupportedValueTypeError reports a value that is neither a primitive nor
// an enumerated label.
type UnsupportedValueTypeError struct {
	Type string
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("prefs: unsupported value type %s; use StoreObject for composite values", e.Type)
}

func (e *UnsupportedValueTypeError) Is(target error) bool {
	return target == ErrUnsupportedValueType
}

// TypeMismatchError reports a typed read of a key holding another kind.
type TypeMismatchError struct {
	Key  string
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("prefs: key %q holds %s, not %s", e.Key, e.Got, e.Want)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// DecodeError reports a stored entry that could not be decoded, either a
// corrupt primitive record or JSON that does not fit the requested shape.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("prefs: decoding %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an object that could not be JSON-encoded.
type EncodeError struct {
	Key string
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("prefs: encoding %q: %v", e.Key, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// StoreError wraps a failure of the underlying backend.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("prefs: store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("prefs: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
