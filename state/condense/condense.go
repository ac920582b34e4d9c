// Package condense implements the pluggable condensation policy State
// uses to build an agent's prompt view (spec.md §4.3): a pure function
// of an event range that may collapse an older segment into a single
// synthetic summary Observation. Grounded on the teacher's evaluation
// package's general "reduce a long transcript to a scored/summarized
// artifact" shape, adapted here to produce a condensed event instead of
// a score.
package condense

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/agentrt/agentrt/event"
)

// Condenser collapses events older than some cutoff into a single
// summary Observation. It must be a pure function of the input slice —
// condensation never mutates the underlying EventStream, only the view
// handed to the agent (spec.md §4.3).
type Condenser interface {
	Condense(ctx context.Context, events []*event.Event) []*event.Event
}

// KeepLastN is the shipped Condenser: events older than the last N
// events (of any kind; an earlier summary in the input counts toward N)
// are collapsed into one synthetic "condensed"
// Observation placed where the collapsed run began. N defaults to 40
// per the decided Open Question (SPEC_FULL.md §9 item 3).
type KeepLastN struct {
	N int
}

// NewKeepLastN constructs a KeepLastN condenser. n <= 0 uses the
// default of 40.
func NewKeepLastN(n int) *KeepLastN {
	if n <= 0 {
		n = 40
	}
	return &KeepLastN{N: n}
}

// Condense implements Condenser.
func (k *KeepLastN) Condense(ctx context.Context, events []*event.Event) []*event.Event {
	if len(events) <= k.N {
		return events
	}
	cutIdx := len(events) - k.N
	older := events[:cutIdx]
	kept := events[cutIdx:]

	summary := summarize(older)
	out := make([]*event.Event, 0, len(kept)+1)
	out = append(out, summary)
	out = append(out, kept...)
	return out
}

const kindCondensed = "condensed"

// maxSummaryRunes bounds the synthetic summary's size regardless of how
// many events it collapses.
const maxSummaryRunes = 2000

func summarize(events []*event.Event) *event.Event {
	var sb strings.Builder
	fmt.Fprintf(&sb, "condensed %d earlier events: ", len(events))
	for i, e := range events {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "#%d %s/%s", e.ID, e.Variant, e.Kind)
	}
	text := norm.NFC.String(sb.String())
	text = truncateRunes(text, maxSummaryRunes)

	var firstID int64
	if len(events) > 0 {
		firstID = events[0].ID
	}
	obs, err := event.NewObservation(event.SourceEnvironment, kindCondensed, map[string]any{
		"text":        text,
		"coversFrom":  firstID,
		"coversCount": len(events),
	})
	if err != nil {
		// The payload shape above is fixed and always marshals; a
		// failure here would be a programming error, not a runtime
		// condition the caller can act on.
		panic(err)
	}
	if len(events) > 0 {
		obs.ID = events[0].ID
		obs.Timestamp = events[0].Timestamp
	}
	return obs
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func init() {
	if err := event.RegisterObservationKind(kindCondensed, map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":        map[string]any{"type": "string"},
			"coversFrom":  map[string]any{"type": "integer"},
			"coversCount": map[string]any{"type": "integer"},
		},
		"required": []string{"text"},
	}); err != nil {
		panic(err)
	}
}
