// Package bbolt implements eventstream.FileStore on a single-file
// embedded B+tree database (go.etcd.io/bbolt), a second embedded-KV
// option alongside store/sqlite for deployments that prefer bbolt's
// single-writer/many-readers mmap model.
package bbolt

import (
	"context"
	"errors"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/agentrt/agentrt/errs"
)

var bucketName = []byte("kv")

// Store is a FileStore backed by one bbolt bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.NewStorageError("open bbolt store", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.NewStorageError("create kv bucket", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put writes key/data within a single bbolt write transaction.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
	if err != nil {
		return errs.NewStorageError("put "+key, err)
	}
	return nil
}

// Get returns the value for key, or errs.NotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return errNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if errors.Is(err, errNotFound) {
		return nil, errs.NewNotFound(key)
	}
	if err != nil {
		return nil, errs.NewStorageError("get "+key, err)
	}
	return data, nil
}

var errNotFound = errors.New("bbolt: key not found")

// List returns every key with the given prefix, via a forward cursor seek.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, errs.NewStorageError("list "+prefix, err)
	}
	return keys, nil
}
