package eventstream_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/store/local"
)

func newPropertyStore(t *testing.T) eventstream.FileStore {
	t.Helper()
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("create property test store: %v", err)
	}
	return store
}

// TestEventStreamInvariants verifies spec.md §8's universal invariants 1
// and 2 against randomized append sequences: dense, monotonic, gap- and
// duplicate-free IDs, and every non-nil Cause pointing at a strictly
// earlier Action event. Grounded on the goadesign-goa-ai pack repo's
// use of leanovate/gopter (registry/stream_manager_test.go,
// runtime/registry/*_property_test.go): prop.ForAll over a generated
// plan, gopter.DefaultTestParameters with a raised MinSuccessfulTests.
func TestEventStreamInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("append sequences satisfy ID density/monotonicity and cause-precedes-effect", prop.ForAll(
		func(plan []bool) bool {
			store := newPropertyStore(t)
			es, err := eventstream.New(context.Background(), "sess-prop", store)
			if err != nil {
				return false
			}
			defer es.Close()

			lastActionID := int64(-1)
			for _, wantObservation := range plan {
				if wantObservation && lastActionID >= 0 {
					obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput,
						map[string]any{"output": "ok"}, event.WithCause(lastActionID))
					if err != nil {
						return false
					}
					if _, err := es.Append(context.Background(), obs); err != nil {
						return false
					}
					continue
				}
				action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand,
					map[string]any{"command": "true"})
				if err != nil {
					return false
				}
				id, err := es.Append(context.Background(), action)
				if err != nil {
					return false
				}
				lastActionID = id
			}

			events, err := es.GetEvents(context.Background(), 0, -1, nil)
			if err != nil {
				return false
			}
			return idsAreDenseAndMonotonic(events) && causesPrecedeEffects(events)
		},
		gen.SliceOfN(40, gen.Bool()),
	))

	properties.TestingRun(t)
}

func idsAreDenseAndMonotonic(events []*event.Event) bool {
	for i, ev := range events {
		if ev.ID != int64(i) {
			return false
		}
	}
	return true
}

func causesPrecedeEffects(events []*event.Event) bool {
	byID := make(map[int64]*event.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	for _, ev := range events {
		if ev.Cause == nil {
			continue
		}
		cause, ok := byID[*ev.Cause]
		if !ok || !(*ev.Cause < ev.ID) || !cause.IsAction() {
			return false
		}
	}
	return true
}
