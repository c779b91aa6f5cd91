package pagesync

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltProfileBucket = []byte("profile")

// BoltProfileStore keeps the profile in a bbolt database. bbolt holds an
// exclusive file lock, so a second process opening the same path times out.
type BoltProfileStore struct {
	db *bolt.DB
}

func NewBoltProfileStore(path string) (*BoltProfileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltProfileBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltProfileStore{db: db}, nil
}

func (b *BoltProfileStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltProfileBucket)
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		value = string(raw)
		found = true
		return nil
	})
	return value, found, err
}

func (b *BoltProfileStore) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltProfileBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *BoltProfileStore) Close() error {
	return b.db.Close()
}
