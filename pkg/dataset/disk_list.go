package dataset

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/prepkit/prepkit/pkg/errors"
)

const samplesBucket = "samples"

// DiskList is a bolt-backed append-only sample collection. Chunk workers
// write into private lists and the coordinator merges them afterwards, so
// a list never sees concurrent writers.
type DiskList struct {
	db    *bbolt.DB
	path  string
	count int
}

// NewDiskList creates a fresh list backed by a uuid-named bolt file
// under dir.
func NewDiskList(dir string) (*DiskList, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to create directory %s", dir)
	}

	path := filepath.Join(dir, uuid.NewString()+".db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to open disk list %s", path)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(samplesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to create samples bucket in %s", path)
	}

	return &DiskList{db: db, path: path}, nil
}

// OpenDiskList reopens a list previously materialized at path and
// recovers its length from the store.
func OpenDiskList(path string) (*DiskList, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "dataset", "disk list %s is not readable", path)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to open disk list %s", path)
	}

	count := 0
	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(samplesBucket))
		if bucket == nil {
			return errors.Storagef("dataset", "%s is not a disk list: samples bucket missing", path)
		}
		count = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DiskList{db: db, path: path, count: count}, nil
}

// Len returns the number of stored samples.
func (l *DiskList) Len() int {
	return l.count
}

// At reads the i-th sample from disk.
func (l *DiskList) At(i int) (*Sample, error) {
	if i < 0 || i >= l.count {
		return nil, errors.Internalf("dataset", "index %d out of range [0,%d)", i, l.count)
	}

	var sample *Sample
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(samplesBucket)).Get(itob(i))
		if data == nil {
			return errors.Storagef("dataset", "missing entry %d in %s", i, l.path)
		}
		var decodeErr error
		sample, decodeErr = decodeSample(data)
		return decodeErr
	})
	if err != nil {
		return nil, err
	}
	return sample, nil
}

// Append writes samples to the end of the list.
func (l *DiskList) Append(samples ...*Sample) error {
	err := l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(samplesBucket))
		for offset, sample := range samples {
			data, err := encodeSample(sample)
			if err != nil {
				return err
			}
			if err := bucket.Put(itob(l.count+offset), data); err != nil {
				return errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to append sample %d", l.count+offset)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.count += len(samples)
	return nil
}

// Iter walks the list in storage order and stops on the first error.
func (l *DiskList) Iter(fn func(i int, sample *Sample) error) error {
	return l.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(samplesBucket)).Cursor()
		i := 0
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			sample, err := decodeSample(v)
			if err != nil {
				return err
			}
			if err := fn(i, sample); err != nil {
				return err
			}
			i++
		}
		return nil
	})
}

// ExtendFrom appends every sample of other, preserving order.
func (l *DiskList) ExtendFrom(other *DiskList) error {
	batch := make([]*Sample, 0, other.Len())
	err := other.Iter(func(_ int, sample *Sample) error {
		batch = append(batch, sample)
		return nil
	})
	if err != nil {
		return err
	}
	return l.Append(batch...)
}

// Path returns the backing file path.
func (l *DiskList) Path() string {
	return l.path
}

// Close releases the backing database without removing it.
func (l *DiskList) Close() error {
	return l.db.Close()
}

// Drop closes the list and removes its backing file.
func (l *DiskList) Drop() error {
	if err := l.db.Close(); err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to close disk list %s", l.path)
	}
	if err := os.Remove(l.path); err != nil {
		return errors.WrapAs(err, errors.CategoryStorage, "dataset", "failed to remove disk list %s", l.path)
	}
	return nil
}

// itob produces the fixed-width big-endian key for index i, keeping
// cursor order equal to append order.
func itob(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func encodeSample(sample *Sample) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sample); err != nil {
		return nil, errors.Serializationf("dataset", "failed to encode sample %d: %v", sample.ID, err)
	}
	return buf.Bytes(), nil
}

func decodeSample(data []byte) (*Sample, error) {
	var sample Sample
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sample); err != nil {
		return nil, errors.Serializationf("dataset", "failed to decode sample: %v", err)
	}
	return &sample, nil
}
