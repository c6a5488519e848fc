package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	metaBucket   = "meta"
	watermarkKey = "watermark"
)

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Watermark reads the persisted watermark.
func (b *boltStore) Watermark() (time.Time, bool, error) {
	if b == nil || b.db == nil {
		return time.Time{}, false, nil
	}

	var (
		wm    time.Time
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket missing")
		}
		raw := bucket.Get([]byte(watermarkKey))
		if raw == nil {
			return nil
		}
		if err := wm.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("decode watermark: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return wm, found, nil
}

// SetWatermark replaces the persisted watermark.
func (b *boltStore) SetWatermark(t time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	raw, err := t.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode watermark: %w", err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(metaBucket))
		if bucket == nil {
			return fmt.Errorf("meta bucket missing")
		}
		return bucket.Put([]byte(watermarkKey), raw)
	})
}
