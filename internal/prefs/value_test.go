package prefs

import (
	"errors"
	"math"
	"testing"

	"github.com/kalambet/prefs/internal/storage"
)

type color int

const (
	red color = iota
	green
)

func (c color) String() string {
	switch c {
	case red:
		return "RED"
	case green:
		return "GREEN"
	}
	return "UNKNOWN"
}

type mode string

type percent float32

type bytesize uint64

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"bool", true, Bool(true)},
		{"int8", int8(-3), Int(-3)},
		{"int16", int16(300), Int(300)},
		{"int32", int32(7), Int(7)},
		{"uint8", uint8(255), Int(255)},
		{"uint16", uint16(65535), Int(65535)},
		{"int", 5, Long(5)},
		{"int64", int64(math.MaxInt64), Long(math.MaxInt64)},
		{"uint32", uint32(math.MaxUint32), Long(math.MaxUint32)},
		{"uint", uint(42), Long(42)},
		{"uint64", uint64(math.MaxInt64), Long(math.MaxInt64)},
		{"named uint64", bytesize(1 << 40), Long(1 << 40)},
		{"float32", float32(0.5), Float(0.5)},
		{"float64", 2.25, Float(2.25)},
		{"string", "hello", String("hello")},
		{"value passthrough", Long(9), Long(9)},
		{"enum label", green, String("GREEN")},
		{"named string", mode("dark"), String("dark")},
		{"named float", percent(0.25), Float(0.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValueOf(tt.in)
			if err != nil {
				t.Fatalf("ValueOf(%v): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ValueOf(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValueOfNil(t *testing.T) {
	v, err := ValueOf(nil)
	if err != nil || v != nil {
		t.Errorf("ValueOf(nil) = %v, %v; want nil, nil", v, err)
	}
}

func TestValueOfRejectsComposites(t *testing.T) {
	inputs := []any{
		struct{ Name string }{"x"},
		[]int{1, 2},
		map[string]string{"a": "b"},
		&struct{}{},
		uint64(math.MaxInt64) + 1,
		bytesize(math.MaxUint64),
	}
	for _, in := range inputs {
		_, err := ValueOf(in)
		if !errors.Is(err, ErrUnsupportedValueType) {
			t.Errorf("ValueOf(%T): err = %v, want ErrUnsupportedValueType", in, err)
		}
		var uerr *UnsupportedValueTypeError
		if !errors.As(err, &uerr) || uerr.Type == "" {
			t.Errorf("ValueOf(%T): expected *UnsupportedValueTypeError with type name, got %v", in, err)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		kind Kind
		text string
		want Value
	}{
		{KindBool, "true", Bool(true)},
		{KindInt, "-42", Int(-42)},
		{KindLong, "9000000000", Long(9000000000)},
		{KindFloat, "1.5", Float(1.5)},
		{KindString, "", String("")},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.kind, tt.text)
		if err != nil {
			t.Fatalf("ParseValue(%s, %q): %v", tt.kind, tt.text, err)
		}
		if got != tt.want {
			t.Errorf("ParseValue(%s, %q) = %#v, want %#v", tt.kind, tt.text, got, tt.want)
		}
	}

	bad := []struct {
		kind Kind
		text string
	}{
		{KindBool, "maybe"},
		{KindInt, "9000000000"},
		{KindLong, "1.5"},
		{KindFloat, "abc"},
		{Kind("json"), "{}"},
	}
	for _, tt := range bad {
		if _, err := ParseValue(tt.kind, tt.text); err == nil {
			t.Errorf("ParseValue(%s, %q): expected error", tt.kind, tt.text)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []Value{
		Bool(false), Int(math.MinInt32), Long(math.MinInt64),
		Float(math.SmallestNonzeroFloat64), Float(-0.1), String("with spaces\nand lines"),
	}
	for _, v := range values {
		got, err := decodeRecord("k", encodeValue(v))
		if err != nil {
			t.Fatalf("decodeRecord(%#v): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %#v -> %#v", v, got)
		}
	}
}

func TestDecodeRecordErrors(t *testing.T) {
	_, err := decodeRecord("k", storage.Record{Kind: "blob", Value: "x"})
	var derr *DecodeError
	if !errors.As(err, &derr) || derr.Key != "k" {
		t.Errorf("unknown kind: err = %v, want *DecodeError for k", err)
	}

	_, err = decodeRecord("k", storage.Record{Kind: "int", Value: "nope"})
	if !errors.As(err, &derr) {
		t.Errorf("bad int: err = %v, want *DecodeError", err)
	}
}

func TestNative(t *testing.T) {
	if got := Native(Int(3)); got != int32(3) {
		t.Errorf("Native(Int(3)) = %#v", got)
	}
	if got := Native(String("s")); got != "s" {
		t.Errorf("Native(String) = %#v", got)
	}
	if got := Native(nil); got != nil {
		t.Errorf("Native(nil) = %#v", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("double"); err == nil {
		t.Error("ParseKind(double): expected error")
	}
}
