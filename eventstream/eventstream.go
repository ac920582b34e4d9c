package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/telemetry"
)

// Callback is invoked once per delivered event. An error leaves the
// subscriber's cursor unadvanced past ev, so the same event is retried on
// the next delivery attempt (at-least-once, spec.md §4.1).
type Callback func(ev *event.Event) error

// EventStream is the single source of truth for what happened in one
// session: an ordered, persisted, fan-out log of events.
type EventStream struct {
	sessionID string
	store     FileStore
	pool      *ants.Pool

	appendMu sync.Mutex // serializes append; makes it linearizable
	tail     atomic.Int64

	subsMu sync.RWMutex
	subs   map[string]*subscription
}

// Option configures a new EventStream.
type Option func(*EventStream)

// WithPoolSize bounds the number of concurrently-dispatching subscriber
// delivery goroutines. Defaults to 32.
func WithPoolSize(n int) Option {
	return func(es *EventStream) {
		if es.pool != nil {
			es.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			panic(err) // n is always caller-controlled and positive
		}
		es.pool = pool
	}
}

// New constructs an EventStream over store for sessionID. It scans the
// store's existing events (if any) to recover the next ID to assign,
// matching "recovered by replay... at restart" (spec.md §4.1).
func New(ctx context.Context, sessionID string, store FileStore, opts ...Option) (*EventStream, error) {
	pool, err := ants.NewPool(32)
	if err != nil {
		return nil, errs.NewConfigurationError("create eventstream worker pool", err)
	}
	es := &EventStream{
		sessionID: sessionID,
		store:     store,
		pool:      pool,
		subs:      make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(es)
	}
	next, err := recoverTail(ctx, store, sessionID)
	if err != nil {
		return nil, err
	}
	es.tail.Store(next)
	return es, nil
}

func recoverTail(ctx context.Context, store FileStore, sessionID string) (int64, error) {
	keys, err := store.List(ctx, eventPrefix(sessionID))
	if err != nil {
		return 0, errs.NewStorageError("recover eventstream tail", err)
	}
	var max int64 = -1
	for _, k := range keys {
		idStr := strings.TrimPrefix(k, eventPrefix(sessionID))
		var id int64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// Append assigns the next dense ID, stamps ev, writes it through to the
// store, and fans it out to subscribers. Linearizable: concurrent callers
// are serialized on appendMu.
func (es *EventStream) Append(ctx context.Context, ev *event.Event) (int64, error) {
	tracer := telemetry.Tracer("agentrt/eventstream")
	ctx, span := tracer.Start(ctx, "eventstream.append")
	defer span.End()

	es.appendMu.Lock()
	defer es.appendMu.Unlock()

	id := es.tail.Load()
	ev.ID = id

	raw, err := json.Marshal(ev)
	if err != nil {
		return 0, errs.NewStorageError("marshal event", err)
	}
	if err := es.store.Put(ctx, eventKey(es.sessionID, id), raw); err != nil {
		return 0, errs.NewStorageError(fmt.Sprintf("append event %d", id), err)
	}
	es.tail.Store(id + 1)

	es.fanOut()
	return id, nil
}

// Tail returns the next ID that will be assigned.
func (es *EventStream) Tail() int64 { return es.tail.Load() }

// SessionID returns the session this stream was constructed for.
func (es *EventStream) SessionID() string { return es.sessionID }

// GetEvent returns the event with the given ID, or errs.NotFound.
func (es *EventStream) GetEvent(ctx context.Context, id int64) (*event.Event, error) {
	raw, err := es.store.Get(ctx, eventKey(es.sessionID, id))
	if err != nil {
		if _, ok := errs.AsNotFound(err); ok {
			return nil, err
		}
		return nil, errs.NewStorageError(fmt.Sprintf("get event %d", id), err)
	}
	var ev event.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errs.NewStorageError(fmt.Sprintf("unmarshal event %d", id), err)
	}
	return &ev, nil
}

// Filter narrows a GetEvents scan. A nil Filter matches everything.
type Filter struct {
	// Branch, when non-empty, matches only events tagged with this
	// delegation frame ID. Empty matches the root frame only unless
	// IncludeBranches is set.
	Branch          string
	IncludeBranches bool
}

func (f *Filter) match(ev *event.Event) bool {
	if f == nil {
		return true
	}
	if f.IncludeBranches {
		return true
	}
	return ev.Branch == f.Branch
}

// GetEvents returns events with startID <= id < endID (endID<0 means
// unbounded, i.e. "up to current tail"), in ID order. It is a pure
// function of the store's current contents and is safe to call
// repeatedly ("restartable" per spec.md §4.1).
func (es *EventStream) GetEvents(ctx context.Context, startID, endID int64, filter *Filter) ([]*event.Event, error) {
	keys, err := es.store.List(ctx, eventPrefix(es.sessionID))
	if err != nil {
		return nil, errs.NewStorageError("list events", err)
	}
	ids := make([]int64, 0, len(keys))
	prefix := eventPrefix(es.sessionID)
	for _, k := range keys {
		idStr := strings.TrimPrefix(k, prefix)
		var id int64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			continue
		}
		if id < startID {
			continue
		}
		if endID >= 0 && id >= endID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*event.Event, 0, len(ids))
	for _, id := range ids {
		ev, err := es.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.match(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe registers name to receive every event appended from startID
// onward. Re-registering the same name replaces the prior subscription
// but resumes from its persisted cursor rather than startID, matching
// "resumes from the recorded cursor" (spec.md §4.1) — pass startID equal
// to Tail() for a fresh subscriber with no history.
func (es *EventStream) Subscribe(ctx context.Context, name string, startID int64, cb Callback) error {
	cursor := startID
	if raw, err := es.store.Get(ctx, cursorKey(es.sessionID, name)); err == nil {
		var c cursorRecord
		if err := json.Unmarshal(raw, &c); err == nil {
			cursor = c.LastID + 1
		}
	}
	sub := &subscription{
		name:   name,
		cb:     cb,
		es:     es,
		cursor: cursor,
	}
	es.subsMu.Lock()
	es.subs[name] = sub
	es.subsMu.Unlock()

	es.deliverAsync(sub)
	return nil
}

// Unsubscribe removes name. Its persisted cursor is left intact so a
// later Subscribe with the same name resumes rather than replaying.
func (es *EventStream) Unsubscribe(name string) {
	es.subsMu.Lock()
	defer es.subsMu.Unlock()
	delete(es.subs, name)
}

// Replay moves name's cursor back to fromID and re-delivers from there.
func (es *EventStream) Replay(ctx context.Context, name string, fromID int64) error {
	es.subsMu.RLock()
	sub, ok := es.subs[name]
	es.subsMu.RUnlock()
	if !ok {
		return errs.NewNotFound("subscriber " + name)
	}
	sub.mu.Lock()
	sub.cursor = fromID
	sub.mu.Unlock()
	es.deliverAsync(sub)
	return nil
}

// fanOut schedules a delivery attempt for every current subscriber.
// Called with appendMu held; pool.Submit waits for a free worker when
// all workers are busy, so scheduling can block until one is released.
func (es *EventStream) fanOut() {
	es.subsMu.RLock()
	defer es.subsMu.RUnlock()
	for _, sub := range es.subs {
		es.deliverAsync(sub)
	}
}

func (es *EventStream) deliverAsync(sub *subscription) {
	err := es.pool.Submit(func() {
		sub.deliver(context.Background())
	})
	if err != nil {
		// Pool overloaded or closed: deliver inline rather than drop,
		// preserving at-least-once (fan-out is best-effort-timely, not
		// best-effort-delivered).
		log.Warnf("eventstream: pool submit failed for subscriber %q, delivering inline: %v", sub.name, err)
		sub.deliver(context.Background())
	}
}

// Close releases the worker pool. Already-appended events and persisted
// cursors are unaffected.
func (es *EventStream) Close() error {
	es.pool.Release()
	return nil
}

type cursorRecord struct {
	LastID int64 `json:"last_id"`
}
