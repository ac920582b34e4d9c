package condense_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/state/condense"
)

func mkEvents(t *testing.T, n int) []*event.Event {
	t.Helper()
	var out []*event.Event
	for i := 0; i < n; i++ {
		e, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{"stdout": "x"})
		require.NoError(t, err)
		e.ID = int64(i + 1)
		out = append(out, e)
	}
	return out
}

func TestShortHistoryPassesThroughUnchanged(t *testing.T) {
	c := condense.NewKeepLastN(40)
	events := mkEvents(t, 10)
	out := c.Condense(context.Background(), events)
	assert.Len(t, out, 10)
	assert.Equal(t, events, out)
}

func TestLongHistoryCollapsesOlderSegmentIntoOneSummary(t *testing.T) {
	c := condense.NewKeepLastN(5)
	events := mkEvents(t, 12)
	out := c.Condense(context.Background(), events)
	require.Len(t, out, 6) // 1 summary + last 5 kept
	assert.Equal(t, "condensed", out[0].Kind)
	assert.Equal(t, events[7:], out[1:])
}

func TestDefaultNIs40WhenNonPositive(t *testing.T) {
	c := condense.NewKeepLastN(0)
	assert.Equal(t, 40, c.N)
	c2 := condense.NewKeepLastN(-5)
	assert.Equal(t, 40, c2.N)
}

func TestSummaryCarriesCoverageMetadata(t *testing.T) {
	c := condense.NewKeepLastN(2)
	events := mkEvents(t, 5)
	out := c.Condense(context.Background(), events)
	var payload struct {
		CoversFrom  int64 `json:"coversFrom"`
		CoversCount int   `json:"coversCount"`
	}
	require.NoError(t, out[0].UnmarshalPayload(&payload))
	assert.Equal(t, int64(1), payload.CoversFrom)
	assert.Equal(t, 3, payload.CoversCount)
}
