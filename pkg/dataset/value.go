package dataset

import (
	"bytes"
	"encoding/gob"

	"github.com/prepkit/prepkit/pkg/errors"
)

// EncodeValue serializes one input payload with gob. Payload types
// outside the set registered in this package must be gob-registered by
// the caller.
func EncodeValue(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, errors.Serializationf("dataset", "cannot encode value: %v", err)
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a payload written by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var value any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return nil, errors.Serializationf("dataset", "cannot decode value: %v", err)
	}
	return value, nil
}
