// Package bbolt provides the durable, bbolt-backed projection store. Values
// and checkpoints live in separate buckets within one database file so a
// batch update and its checkpoint advance commit in one transaction.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	es "github.com/kokimiza/ledgerstream"
	bolt "go.etcd.io/bbolt"
)

const (
	valuesBucket      = "values"
	checkpointsBucket = "checkpoints"
)

var _ es.ProjectionStore = (*Store)(nil)

// Store is a bbolt-backed ProjectionStore.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the projection store at opts.Path.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("projection store path is required")
	}

	db, err := bolt.Open(filepath.Clean(opts.Path), 0o600, &bolt.Options{
		Timeout: opts.OpenTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open projection store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{valuesBucket, checkpointsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// valueRecord is the on-disk encoding of one projection value. Values are
// opaque bytes; the sequence and timestamp of the last write ride alongside
// them for inspection.
type valueRecord struct {
	Value     []byte `json:"value"`
	Sequence  uint64 `json:"sequence"`
	UpdatedAt string `json:"updated_at"`
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(valuesBucket)).Get([]byte(key))
		if raw == nil {
			return fmt.Errorf("key %q: %w", key, es.ErrKeyNotFound)
		}
		var record valueRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode value for key %q: %w", key, err)
		}
		out = append([]byte(nil), record.Value...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, key string, value []byte, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("projection key is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return putValue(tx.Bucket([]byte(valuesBucket)), key, value, sequence)
	})
}

// UpdateBatch writes all entries and advances the checkpoint for (name,
// version) in one transaction. The checkpoint never moves backwards, so a
// replayed batch is harmless.
func (s *Store) UpdateBatch(ctx context.Context, name string, version uint32, entries []es.ProjectionEntry, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("projection name is required")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		values := tx.Bucket([]byte(valuesBucket))
		for _, entry := range entries {
			if strings.TrimSpace(entry.Key) == "" {
				return fmt.Errorf("projection key is required")
			}
			if err := putValue(values, entry.Key, entry.Value, sequence); err != nil {
				return err
			}
		}

		checkpoints := tx.Bucket([]byte(checkpointsBucket))
		key := checkpointKey(name, version)
		if current := checkpoints.Get(key); len(current) == 8 {
			if binary.BigEndian.Uint64(current) >= sequence {
				return nil
			}
		}
		return checkpoints.Put(key, sequenceValue(sequence))
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(valuesBucket)).Delete([]byte(key))
	})
}

// Position returns the checkpoint for (name, version), 0 for an unseen projection.
func (s *Store) Position(ctx context.Context, name string, version uint32) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var position uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(checkpointsBucket)).Get(checkpointKey(name, version))
		if len(raw) == 8 {
			position = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	if err != nil {
		return 0, es.WrapStorageError(err)
	}
	return position, nil
}

func putValue(bucket *bolt.Bucket, key string, value []byte, sequence uint64) error {
	raw, err := json.Marshal(valueRecord{
		Value:     value,
		Sequence:  sequence,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode value for key %q: %w", key, err)
	}
	return bucket.Put([]byte(key), raw)
}

// checkpointKey names one checkpoint slot, e.g. "ledger@v2". Bumping the
// projection version yields a fresh slot, leaving the old one untouched for
// side-by-side rebuilds.
func checkpointKey(name string, version uint32) []byte {
	return []byte(fmt.Sprintf("%s@v%d", name, version))
}

func sequenceValue(seq uint64) []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, seq)
	return value
}
