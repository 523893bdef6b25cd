package cache

import (
	"bytes"
	"encoding/gob"

	"github.com/prepkit/prepkit/pkg/errors"
)

// Codec (de)serializes cached values to and from bytes.
type Codec[T any] interface {
	Encode(value T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// GobCodec encodes values with encoding/gob, the default for arbitrary
// preparation artifacts.
type GobCodec[T any] struct{}

// NewGobCodec returns a gob codec for T.
func NewGobCodec[T any]() GobCodec[T] {
	return GobCodec[T]{}
}

// Encode implements Codec.
func (GobCodec[T]) Encode(value T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, errors.Serializationf("cache", "cannot encode value: %v", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec[T]) Decode(data []byte) (T, error) {
	var value T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		var zero T
		return zero, errors.Serializationf("cache", "cannot decode value: %v", err)
	}
	return value, nil
}
