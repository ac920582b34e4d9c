package eventstream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/agentrt/agentrt/log"
)

// subscription tracks one named subscriber's delivery cursor. deliver is
// always run with mu held, giving "a single-threaded cooperative context
// per subscriber" (spec.md §4.1): concurrent deliverAsync calls for the
// same subscriber serialize on mu rather than interleave.
type subscription struct {
	name   string
	cb     Callback
	es     *EventStream
	mu     sync.Mutex
	cursor int64
}

// deliver drains every event from cursor up to the stream's current tail,
// invoking cb for each in order. A callback error stops delivery at that
// event — the cursor does not advance past it — so the next fan-out or
// Replay retries from the same point (at-least-once).
func (s *subscription) deliver(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		tail := s.es.Tail()
		if s.cursor >= tail {
			return
		}
		ev, err := s.es.GetEvent(ctx, s.cursor)
		if err != nil {
			log.Errorf("eventstream: subscriber %q failed to load event %d: %v", s.name, s.cursor, err)
			return
		}
		if err := s.cb(ev); err != nil {
			log.Warnf("eventstream: subscriber %q callback failed on event %d: %v", s.name, s.cursor, err)
			return
		}
		s.cursor++
		s.persistCursor(ctx)
	}
}

// persistCursor is best-effort: "cursor updates need only be eventually
// durable" (spec.md §4.1). A failed write is logged, not propagated —
// worst case a restart re-delivers a few already-acknowledged events,
// which at-least-once semantics already require subscribers to tolerate.
func (s *subscription) persistCursor(ctx context.Context) {
	raw, err := json.Marshal(cursorRecord{LastID: s.cursor - 1})
	if err != nil {
		return
	}
	if err := s.es.store.Put(ctx, cursorKey(s.es.sessionID, s.name), raw); err != nil {
		log.Warnf("eventstream: failed to persist cursor for subscriber %q: %v", s.name, err)
	}
}
