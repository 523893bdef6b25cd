package cache

import (
	"context"

	"github.com/prepkit/prepkit/pkg/errors"
)

// Operation describes a cached computation. KeyParams identifies the
// entry; Args is handed to the producer verbatim. ClearCache deletes
// any existing entry before the lookup, forcing a recompute.
type Operation[T any] struct {
	Producer   func(ctx context.Context, args map[string]any) (T, error)
	Args       map[string]any
	KeyParams  map[string]any
	ClearCache bool
}

// Execute runs op through the store: a hit decodes the stored entry, a
// miss invokes the producer and persists its result. A failed producer
// leaves no entry behind.
func Execute[T any](ctx context.Context, store *Store, codec Codec[T], op Operation[T]) (T, error) {
	var zero T

	digest, err := Key(op.KeyParams)
	if err != nil {
		return zero, err
	}

	if op.ClearCache {
		if err := store.Delete(digest); err != nil {
			return zero, err
		}
	}

	if store.Has(digest) {
		store.collected.Hits.Inc()
		store.logger.Debug().Str("digest", digest).Msg("Cache hit")

		data, err := store.ReadEntry(digest)
		if err != nil {
			return zero, err
		}
		return codec.Decode(data)
	}

	store.collected.Misses.Inc()
	store.logger.Debug().Str("digest", digest).Msg("Cache miss")

	value, err := op.Producer(ctx, op.Args)
	if err != nil {
		return zero, err
	}

	data, err := codec.Encode(value)
	if err != nil {
		return zero, err
	}
	if err := store.WriteEntry(digest, data); err != nil {
		return zero, err
	}
	return value, nil
}

// Load decodes the entry stored under the given key parameters.
func Load[T any](store *Store, codec Codec[T], keyParams map[string]any) (T, error) {
	var zero T

	digest, err := Key(keyParams)
	if err != nil {
		return zero, err
	}
	if !store.Has(digest) {
		return zero, errors.Storagef("cache", "no entry for digest %s", digest)
	}

	data, err := store.ReadEntry(digest)
	if err != nil {
		return zero, err
	}
	return codec.Decode(data)
}

// Save stores value under the given key parameters, replacing any
// existing entry.
func Save[T any](store *Store, codec Codec[T], keyParams map[string]any, value T) error {
	digest, err := Key(keyParams)
	if err != nil {
		return err
	}

	data, err := codec.Encode(value)
	if err != nil {
		return err
	}
	return store.WriteEntry(digest, data)
}
