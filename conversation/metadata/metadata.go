// Package metadata defines the durable conversation-metadata contract
// conversation.Manager persists to, independent of any one backend.
// Grounded on the goadesign-goa-ai pack repo's session.Store interface
// (runtime/agent/session), which separates the storage contract from
// its Mongo implementation the same way.
package metadata

import (
	"context"
	"time"

	"github.com/agentrt/agentrt/state"
)

// Record is the durable projection of one conversation's lifecycle,
// independent of the live EventStream/Runtime/AgentController it backs.
type Record struct {
	ConversationID string
	UserID         string
	AgentState     state.AgentState
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists and retrieves Records. Implementations must make
// Upsert safe under concurrent calls for distinct ConversationIDs.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Load(ctx context.Context, conversationID string) (Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
}
