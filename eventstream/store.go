// Package eventstream implements the per-session, append-only, persisted,
// fan-out event log described by the core's EventStream contract.
package eventstream

import (
	"context"
	"fmt"
)

// FileStore is the minimal persistence contract the stream writes through
// to. Concrete backends (local disk, sqlite, bbolt, redis, object storage)
// live in eventstream/store/*.
type FileStore interface {
	// Put durably writes data under key, overwriting any prior value.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the bytes stored at key, or errs.NotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key with the given prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
}

func eventKey(sessionID string, id int64) string {
	return fmt.Sprintf("%s/events/%012d", sessionID, id)
}

func eventPrefix(sessionID string) string {
	return sessionID + "/events/"
}

func cursorKey(sessionID, subscriberName string) string {
	return fmt.Sprintf("%s/cursors/%s", sessionID, subscriberName)
}
