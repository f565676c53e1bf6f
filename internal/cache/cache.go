// Package cache persists accessory records in a bbolt database
// so accessories survive restarts with their context intact.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Travis-Britz/noip"
)

// ErrNotFound indicates the requested accessory is not cached.
var ErrNotFound = errors.New("accessory not found")

var bucketAccessories = []byte("accessories")

// Store is a bbolt-backed accessory cache keyed by accessory UUID.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the cache at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening accessory cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccessories)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating accessory bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every cached accessory.
func (s *Store) List(ctx context.Context) ([]*noip.Accessory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var accessories []*noip.Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccessories).ForEach(func(k, v []byte) error {
			var acc noip.Accessory
			if err := json.Unmarshal(v, &acc); err != nil {
				return fmt.Errorf("error decoding accessory %s: %w", k, err)
			}
			accessories = append(accessories, &acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return accessories, nil
}

// Get returns the accessory with the given UUID.
func (s *Store) Get(ctx context.Context, uuid string) (*noip.Accessory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var acc *noip.Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccessories).Get([]byte(uuid))
		if v == nil {
			return ErrNotFound
		}
		acc = new(noip.Accessory)
		return json.Unmarshal(v, acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Put stores or replaces an accessory.
func (s *Store) Put(ctx context.Context, acc *noip.Accessory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if acc.UUID == "" {
		return errors.New("accessory has no UUID")
	}
	payload, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccessories).Put([]byte(acc.UUID), payload)
	})
}

// Delete removes an accessory. Deleting a missing accessory is not an error.
func (s *Store) Delete(ctx context.Context, uuid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccessories).Delete([]byte(uuid))
	})
}
