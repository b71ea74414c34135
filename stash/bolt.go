package stash

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stashBucket = []byte("stash")

// BoltDisk stores documents in a single bbolt database file.
type BoltDisk struct {
	db *bolt.DB
}

// NewBoltDisk opens (or creates) the database at path.
func NewBoltDisk(path string) (*BoltDisk, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stashBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &BoltDisk{db: db}, nil
}

func (d *BoltDisk) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(stashBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (d *BoltDisk) Put(_ context.Context, key string, data []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(stashBucket).Put([]byte(key), data)
	})
}

func (d *BoltDisk) Delete(_ context.Context, key string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(stashBucket)
		if b.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Close closes the database file.
func (d *BoltDisk) Close() error {
	return d.db.Close()
}
