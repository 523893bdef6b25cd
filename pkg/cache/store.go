package cache

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prepkit/prepkit/pkg/errors"
	"github.com/prepkit/prepkit/pkg/metrics"
)

// Store persists cache entries as flat files {root}/{digest}. Writes are
// whole-file replacements through a temp file and rename, so concurrent
// producers of one digest may duplicate work but never corrupt a read;
// the last writer wins.
type Store struct {
	root      string
	logger    zerolog.Logger
	collected *metrics.CacheMetrics
}

// NewStore creates the cache root if needed and returns a store over it.
func NewStore(root string, logger zerolog.Logger, collector *metrics.Collector) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "cache", "cannot create cache root %s", root)
	}
	if collector == nil {
		collector = metrics.NewNop()
	}
	return &Store{
		root:      root,
		logger:    logger.With().Str("component", "cache").Logger(),
		collected: collector.Cache(),
	}, nil
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the entry file path for a digest.
func (s *Store) Path(digest string) string {
	return filepath.Join(s.root, digest)
}

// Has reports whether an entry exists for the digest.
func (s *Store) Has(digest string) bool {
	info, err := os.Stat(s.Path(digest))
	return err == nil && !info.IsDir()
}

// Delete removes the entry for a digest. Deleting a missing entry is a
// no-op, not a failure.
func (s *Store) Delete(digest string) error {
	err := os.Remove(s.Path(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.WrapAs(err, errors.CategoryStorage, "cache", "cannot delete entry %s", digest)
	}
	s.collected.Deletes.Inc()
	return nil
}

// ReadEntry returns an entry's raw bytes.
func (s *Store) ReadEntry(digest string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(digest))
	if err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "cache", "cannot read entry %s", digest)
	}
	return data, nil
}

// WriteEntry atomically replaces an entry with the given bytes.
func (s *Store) WriteEntry(digest string, data []byte) error {
	tmp := filepath.Join(s.root, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "cache", "cannot write entry %s", digest)
	}
	if err := os.Rename(tmp, s.Path(digest)); err != nil {
		_ = os.Remove(tmp)
		return errors.WrapAs(err, errors.CategoryStorage, "cache", "cannot publish entry %s", digest)
	}
	s.collected.Saves.Inc()
	s.collected.EntrySize.Observe(float64(len(data)))
	return nil
}
