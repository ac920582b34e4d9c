// Package redis implements eventstream.FileStore against a networked
// Redis instance (redis/go-redis/v9), the store of choice when event
// streams and subscriber cursors need to be visible across processes —
// e.g. a ConversationManager fleet behind a load balancer.
package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentrt/agentrt/errs"
)

// Store is a FileStore backed by plain Redis string keys, prefixed with
// keyPrefix to share a database with unrelated data.
type Store struct {
	client    *goredis.Client
	keyPrefix string
}

// New wraps an already-constructed client. keyPrefix namespaces every key
// this store touches (e.g. "agentrt:").
func New(client *goredis.Client, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) wire(key string) string { return s.keyPrefix + key }

// Put sets key/data with no expiry — events are retained until their
// session is explicitly closed and reaped, not TTL'd.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.wire(key), data, 0).Err(); err != nil {
		return errs.NewStorageError("put "+key, err)
	}
	return nil
}

// Get returns the value for key, or errs.NotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.wire(key)).Bytes()
	if err == goredis.Nil {
		return nil, errs.NewNotFound(key)
	}
	if err != nil {
		return nil, errs.NewStorageError("get "+key, err)
	}
	return data, nil
}

// List scans for every key with the given prefix, stripping the store's
// own keyPrefix before returning.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	pattern := s.wire(prefix) + "*"
	for {
		var batch []string
		var err error
		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, errs.NewStorageError("scan "+prefix, err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.keyPrefix):])
		}
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}
