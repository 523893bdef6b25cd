// Package cache provides a content-addressed store that memoizes the
// results of expensive operations under a canonical digest of their
// parameters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/prepkit/prepkit/pkg/errors"
)

// Key canonicalizes a parameter map and returns its hex digest. Nested
// maps are sorted by key at every depth before hashing, so map key order
// never affects the digest while any value change does.
func Key(params map[string]any) (string, error) {
	data, err := json.Marshal(canonicalize(params))
	if err != nil {
		return "", errors.Serializationf("cache", "cannot canonicalize key parameters: %v", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize normalizes nested maps to string-keyed form. Marshaling
// emits map keys in sorted order, which yields the canonical bytes.
func canonicalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = canonicalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprintf("%v", key)] = canonicalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}
