package eventstream_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/store/local"
)

func newTestStream(t *testing.T) *eventstream.EventStream {
	t.Helper()
	store, err := local.New(t.TempDir())
	require.NoError(t, err)
	es, err := eventstream.New(context.Background(), "sess-1", store)
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })
	return es
}

func appendMessage(t *testing.T, es *eventstream.EventStream, text string) int64 {
	t.Helper()
	ev, err := event.NewObservation(event.SourceUser, event.ObservationUserMessage, map[string]any{"text": text})
	require.NoError(t, err)
	id, err := es.Append(context.Background(), ev)
	require.NoError(t, err)
	return id
}

func TestAppendAssignsDenseMonotonicIDs(t *testing.T) {
	es := newTestStream(t)
	for i := 0; i < 5; i++ {
		id := appendMessage(t, es, fmt.Sprintf("msg-%d", i))
		assert.Equal(t, int64(i), id)
	}
	assert.Equal(t, int64(5), es.Tail())
}

func TestGetEventRoundTrips(t *testing.T) {
	es := newTestStream(t)
	appendMessage(t, es, "hello")
	ev, err := es.GetEvent(context.Background(), 0)
	require.NoError(t, err)
	var payload struct {
		Text string `json:"text"`
	}
	require.NoError(t, ev.UnmarshalPayload(&payload))
	assert.Equal(t, "hello", payload.Text)
}

func TestGetEventNotFound(t *testing.T) {
	es := newTestStream(t)
	_, err := es.GetEvent(context.Background(), 42)
	_, ok := errs.AsNotFound(err)
	assert.True(t, ok)
}

func TestGetEventsRangeAndOrder(t *testing.T) {
	es := newTestStream(t)
	for i := 0; i < 10; i++ {
		appendMessage(t, es, fmt.Sprintf("m%d", i))
	}
	evs, err := es.GetEvents(context.Background(), 3, 7, nil)
	require.NoError(t, err)
	require.Len(t, evs, 4)
	for i, ev := range evs {
		assert.Equal(t, int64(3+i), ev.ID)
	}
}

func TestGetEventsUnboundedEnd(t *testing.T) {
	es := newTestStream(t)
	for i := 0; i < 3; i++ {
		appendMessage(t, es, "m")
	}
	evs, err := es.GetEvents(context.Background(), 0, -1, nil)
	require.NoError(t, err)
	assert.Len(t, evs, 3)
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	es := newTestStream(t)

	var mu sync.Mutex
	var received []int64
	done := make(chan struct{})

	require.NoError(t, es.Subscribe(context.Background(), "sub-1", 0, func(ev *event.Event) error {
		mu.Lock()
		received = append(received, ev.ID)
		n := len(received)
		mu.Unlock()
		if n == 5 {
			close(done)
		}
		return nil
	}))

	for i := 0; i < 5; i++ {
		appendMessage(t, es, fmt.Sprintf("m%d", i))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive all events in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 5)
	for i, id := range received {
		assert.Equal(t, int64(i), id)
	}
}

func TestSubscribeStartIDSkipsHistory(t *testing.T) {
	es := newTestStream(t)
	for i := 0; i < 3; i++ {
		appendMessage(t, es, "early")
	}

	var mu sync.Mutex
	var received []int64
	done := make(chan struct{})
	require.NoError(t, es.Subscribe(context.Background(), "late-sub", es.Tail(), func(ev *event.Event) error {
		mu.Lock()
		received = append(received, ev.ID)
		mu.Unlock()
		close(done)
		return nil
	}))

	appendMessage(t, es, "first seen")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive its first event in time")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, int64(3), received[0])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	es := newTestStream(t)
	var count int
	var mu sync.Mutex
	require.NoError(t, es.Subscribe(context.Background(), "stopper", 0, func(ev *event.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))
	appendMessage(t, es, "one")
	time.Sleep(100 * time.Millisecond)
	es.Unsubscribe("stopper")
	appendMessage(t, es, "two")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestReplayFromZeroRedeliversFullSequence(t *testing.T) {
	es := newTestStream(t)
	for i := 0; i < 4; i++ {
		appendMessage(t, es, "m")
	}

	var mu sync.Mutex
	var firstPass []int64
	done := make(chan struct{})
	require.NoError(t, es.Subscribe(context.Background(), "replay-sub", 0, func(ev *event.Event) error {
		mu.Lock()
		firstPass = append(firstPass, ev.ID)
		n := len(firstPass)
		mu.Unlock()
		if n == 4 {
			close(done)
		}
		return nil
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("initial delivery did not complete")
	}

	require.NoError(t, es.Replay(context.Background(), "replay-sub", 0))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// First delivery 0..3, replay redelivers 0..3 again: same relative order both times.
	require.Len(t, firstPass, 8)
	for i := 0; i < 4; i++ {
		assert.Equal(t, firstPass[i], firstPass[i+4])
	}
}

func TestCallbackErrorDoesNotAdvanceCursorPastFailure(t *testing.T) {
	es := newTestStream(t)
	var attempts int
	var mu sync.Mutex
	fail := true
	succeeded := make(chan struct{})

	require.NoError(t, es.Subscribe(context.Background(), "flaky", 0, func(ev *event.Event) error {
		mu.Lock()
		attempts++
		shouldFail := fail
		mu.Unlock()
		if shouldFail {
			return assert.AnError
		}
		close(succeeded)
		return nil
	}))

	appendMessage(t, es, "m")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	fail = false
	mu.Unlock()

	require.NoError(t, es.Replay(context.Background(), "flaky", 0))

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("retry after transient failure never succeeded")
	}
}

func TestGetEventsFilterByBranch(t *testing.T) {
	es := newTestStream(t)
	root, err := event.NewObservation(event.SourceUser, event.ObservationUserMessage, map[string]any{"text": "root"})
	require.NoError(t, err)
	_, err = es.Append(context.Background(), root)
	require.NoError(t, err)

	child, err := event.NewObservation(event.SourceAgent, event.ObservationUserMessage, map[string]any{"text": "child"}, event.WithBranch("frame-1"))
	require.NoError(t, err)
	_, err = es.Append(context.Background(), child)
	require.NoError(t, err)

	rootOnly, err := es.GetEvents(context.Background(), 0, -1, &eventstream.Filter{Branch: ""})
	require.NoError(t, err)
	require.Len(t, rootOnly, 1)
	assert.Equal(t, "", rootOnly[0].Branch)

	all, err := es.GetEvents(context.Background(), 0, -1, &eventstream.Filter{IncludeBranches: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
