package factory

import (
	"github.com/prepkit/prepkit/pkg/errors"
)

// Params wraps the materialized parameter map handed to a Constructor.
// Numeric values arriving from YAML or JSON decode as float64; the
// accessors coerce them back.
type Params map[string]any

// Has reports whether the key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Any returns the raw value for key.
func (p Params) Any(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the string at key or def when absent.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// RequireString returns the string at key or a validation error.
func (p Params) RequireString(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", errors.Validationf("factory", "missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Validationf("factory", "parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// Int returns the integer at key or def when absent.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// Float returns the float at key or def when absent.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Bool returns the bool at key or def when absent.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Strings returns the string slice at key, accepting both []string and
// the []any form produced by YAML/JSON decoding.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Validationf("factory", "parameter %q must contain strings, got %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Validationf("factory", "parameter %q must be a string list, got %T", key, v)
	}
}

// Floats returns the float slice at key, accepting []float64 and the
// []any form produced by YAML/JSON decoding.
func (p Params) Floats(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, nil
	}
	switch vv := v.(type) {
	case []float64:
		return vv, nil
	case []any:
		out := make([]float64, 0, len(vv))
		for _, item := range vv {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case int64:
				out = append(out, float64(n))
			default:
				return nil, errors.Validationf("factory", "parameter %q must contain numbers, got %T", key, item)
			}
		}
		return out, nil
	default:
		return nil, errors.Validationf("factory", "parameter %q must be a number list, got %T", key, v)
	}
}
