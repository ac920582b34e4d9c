// Package idgen mints the non-sequential identifiers used for sessions,
// runtimes, and subscriptions — as opposed to the dense, monotonic
// integer IDs an EventStream assigns to events, which must never come
// from this package.
package idgen

import "github.com/google/uuid"

// New returns a random v4 UUID string.
func New() string {
	return uuid.NewString()
}
