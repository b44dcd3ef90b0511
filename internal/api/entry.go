package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/kalambet/prefs/internal/prefs"
)

// Entry is the wire form of one preference, shared by the HTTP API, the MCP
// tools and the CLI export format.
type Entry struct {
	Key   string          `json:"key,omitempty"`
	Type  prefs.Kind      `json:"type,omitempty"`
	Value json.RawMessage `json:"value"`
}

// EntryOf renders v under key. JSON has no NaN or infinities, so those
// floats are written as the strings "NaN", "+Inf" and "-Inf", which Decode
// accepts back for type float.
func EntryOf(key string, v prefs.Value) (Entry, error) {
	native := prefs.Native(v)
	if f, ok := native.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		native = v.String()
	}
	raw, err := json.Marshal(native)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: key, Type: v.Kind(), Value: raw}, nil
}

// Decode converts the entry into a typed value. A JSON null yields nil,
// which removes the key when saved. Without a type the kind is inferred:
// booleans, strings, integral numbers as long, other numbers as float.
func (e Entry) Decode() (prefs.Value, error) {
	raw := bytes.TrimSpace(e.Value)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if e.Type == "" {
		return inferValue(raw)
	}
	if _, err := prefs.ParseKind(string(e.Type)); err != nil {
		return nil, err
	}

	if e.Type == prefs.KindString {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("value for type string must be a JSON string")
		}
		return prefs.String(s), nil
	}
	return prefs.ParseValue(e.Type, strings.Trim(string(raw), `"`))
}

func inferValue(raw []byte) (prefs.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}

	switch t := x.(type) {
	case bool:
		return prefs.Bool(t), nil
	case string:
		return prefs.String(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return prefs.Long(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", t, err)
		}
		return prefs.Float(f), nil
	default:
		return nil, &prefs.UnsupportedValueTypeError{Type: fmt.Sprintf("%T", x)}
	}
}
