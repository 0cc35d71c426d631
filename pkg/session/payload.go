package session

import (
	"encoding/json"
	"math"
	"strconv"
)

// Payload is the loosely typed body of a command or event. Values decoded
// from JSON arrive as json.Number (bridge frames), float64, string, bool, []any or map[string]any; the
// accessors below absorb those differences.
type Payload map[string]any

// Float returns a numeric field.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Uint64 returns a non-negative integer field without a float round trip.
func (p Payload) Uint64(key string) (uint64, bool) {
	switch v := p[key].(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	case float64:
		// Exact only below 2^53; bridges should send ids as strings or
		// decode with UseNumber.
		if v < 0 || v >= 1<<64 || v != math.Trunc(v) {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// Int returns a numeric field truncated to int.
func (p Payload) Int(key string) (int, bool) {
	f, ok := p.Float(key)
	return int(f), ok
}

// Bool returns a boolean field.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// String returns a string field.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Object returns a nested object field.
func (p Payload) Object(key string) (Payload, bool) {
	switch v := p[key].(type) {
	case Payload:
		return v, true
	case map[string]any:
		return Payload(v), true
	default:
		return nil, false
	}
}

// Objects returns a list-of-objects field, skipping non-object elements.
func (p Payload) Objects(key string) ([]Payload, bool) {
	switch v := p[key].(type) {
	case []Payload:
		return v, true
	case []map[string]any:
		out := make([]Payload, len(v))
		for i, m := range v {
			out[i] = Payload(m)
		}
		return out, true
	case []any:
		out := make([]Payload, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Payload(m))
			case Payload:
				out = append(out, m)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
