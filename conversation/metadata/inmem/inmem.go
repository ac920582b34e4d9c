// Package inmem provides an in-memory metadata.Store, for tests and for
// single-process deployments that don't need a Mongo-backed metadata
// table. Grounded on the goadesign-goa-ai pack repo's
// features/session/mongo/clients/mongo/inmem fake (mutex-guarded map,
// clone-on-read to keep callers from mutating stored state).
package inmem

import (
	"context"
	"sync"

	"github.com/agentrt/agentrt/conversation/metadata"
	"github.com/agentrt/agentrt/errs"
)

// Store is a process-local metadata.Store.
type Store struct {
	mu      sync.RWMutex
	records map[string]metadata.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string]metadata.Record)}
}

// Upsert implements metadata.Store, preserving CreatedAt across repeat
// calls for the same ConversationID.
func (s *Store) Upsert(_ context.Context, rec metadata.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.ConversationID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	s.records[rec.ConversationID] = rec
	return nil
}

// Load implements metadata.Store.
func (s *Store) Load(_ context.Context, conversationID string) (metadata.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[conversationID]
	if !ok {
		return metadata.Record{}, errs.NewNotFound("conversation " + conversationID)
	}
	return rec, nil
}

// ListByUser implements metadata.Store.
func (s *Store) ListByUser(_ context.Context, userID string) ([]metadata.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []metadata.Record
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}
