package prefs

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/kalambet/prefs/internal/storage"
)

// Kind names the primitive type of a stored value.
type Kind string

const (
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindLong   Kind = "long"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Kinds lists every storable kind.
var Kinds = []Kind{KindBool, KindInt, KindLong, KindFloat, KindString}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown value type %q (want one of bool, int, long, float, string)", s)
}

// Value is a storable primitive. The set of implementations is closed:
// Bool, Int, Long, Float and String.
type Value interface {
	Kind() Kind
	// String returns the canonical text encoding of the value.
	String() string
	value()
}

type (
	Bool   bool
	Int    int32
	Long   int64
	Float  float64
	String string
)

func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Long) Kind() Kind   { return KindLong }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }

func (v Bool) String() string   { return strconv.FormatBool(bool(v)) }
func (v Int) String() string    { return strconv.FormatInt(int64(v), 10) }
func (v Long) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Float) String() string  { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v String) String() string { return string(v) }

func (Bool) value()   {}
func (Int) value()    {}
func (Long) value()   {}
func (Float) value()  {}
func (String) value() {}

// Native returns v as a plain Go value (bool, int32, int64, float64 or string).
func Native(v Value) any {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case Int:
		return int32(t)
	case Long:
		return int64(t)
	case Float:
		return float64(t)
	case String:
		return string(t)
	}
	return nil
}

// ParseValue builds a value of the given kind from its text form.
func ParseValue(kind Kind, text string) (Value, error) {
	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q: %w", text, err)
		}
		return Bool(b), nil
	case KindInt:
		i, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", text, err)
		}
		return Int(i), nil
	case KindLong:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid long %q: %w", text, err)
		}
		return Long(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", text, err)
		}
		return Float(f), nil
	case KindString:
		return String(text), nil
	}
	return nil, fmt.Errorf("unknown value type %q", kind)
}

// ValueOf converts a dynamic Go value into a Value.
//
// Small integers (int8, int16, int32, uint8, uint16) become Int; int, int64
// and uint32 become Long, as do uint and uint64 up to math.MaxInt64 (larger
// values are an *UnsupportedValueTypeError); floats become Float. Enumerated labels (integer or
// string types implementing fmt.Stringer) are stored as their label. A nil
// argument returns a nil Value and no error. Anything else, composites in
// particular, yields an *UnsupportedValueTypeError.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case int:
		return Long(v), nil
	case int64:
		return Long(v), nil
	case uint32:
		return Long(v), nil
	case uint:
		return unsignedLong(uint64(v), x)
	case uint64:
		return unsignedLong(v, x)
	case float32:
		return Float(v), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16,
		reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64, reflect.String:
		if s, ok := x.(fmt.Stringer); ok {
			return String(s.String()), nil
		}
	}
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return Int(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16:
		return Int(rv.Uint()), nil
	case reflect.Int, reflect.Int64:
		return Long(rv.Int()), nil
	case reflect.Uint32:
		return Long(rv.Uint()), nil
	case reflect.Uint, reflect.Uint64:
		return unsignedLong(rv.Uint(), x)
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	}
	return nil, &UnsupportedValueTypeError{Type: fmt.Sprintf("%T", x)}
}

func unsignedLong(u uint64, x any) (Value, error) {
	if u > math.MaxInt64 {
		return nil, &UnsupportedValueTypeError{Type: fmt.Sprintf("%T out of int64 range", x)}
	}
	return Long(int64(u)), nil
}

func encodeValue(v Value) storage.Record {
	return storage.Record{Kind: string(v.Kind()), Value: v.String()}
}

func decodeRecord(key string, r storage.Record) (Value, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}
	v, err := ParseValue(kind, r.Value)
	if err != nil {
		return nil, &DecodeError{Key: key, Err: err}
	}
	return v, nil
}
