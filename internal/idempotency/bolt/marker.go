// Package bolt implements the processed-marker store on an embedded
// BoltDB file. Suitable for single-node workers that need markers to
// survive restarts without an external store.
package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "processed_markers"

// MarkerStore records processed keys in a local BoltDB file.
type MarkerStore struct {
	db *bolt.DB
}

// NewMarkerStore opens (or creates) the database at path and ensures the
// marker bucket exists.
func NewMarkerStore(path string) (*MarkerStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open marker database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create marker bucket: %w", err)
	}

	return &MarkerStore{db: db}, nil
}

// Close releases the database file lock.
func (s *MarkerStore) Close() error {
	return s.db.Close()
}

// MarkOnce claims the key inside a single write transaction, so
// concurrent callers for the same key see exactly one true.
func (s *MarkerStore) MarkOnce(_ context.Context, key string) (bool, error) {
	claimed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get([]byte(key)) != nil {
			return nil
		}
		claimed = true
		return b.Put([]byte(key), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return claimed, nil
}
