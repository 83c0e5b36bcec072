package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeData parses a JSON object into a document data map. Integral numbers
// decode as int64 and the rest as float64, so values written by a backend
// that distinguishes integers survive a round trip through JSON.
func DecodeData(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidData)
	}
	return NormalizeNumbers(data).(map[string]any), nil
}

// NormalizeNumbers replaces json.Number values anywhere inside v with int64
// or float64.
func NormalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = NormalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = NormalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}
