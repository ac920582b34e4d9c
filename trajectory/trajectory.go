// Package trajectory implements the save/replay/report surface of
// spec.md §6's `save_trajectory_path`/`replay_trajectory_path` options
// and S6's replay scenario: exporting an EventStream's events to disk,
// replaying a prior export as the initial prefix of a fresh stream
// (cause relationships re-pointed at the new IDs the stream assigns),
// and rendering a human-readable report. Grounded on
// eventstream/store/local's "one file per key" layout for the directory
// form, and on the trpc-group-trpc-agent-go knowledge/chunking
// package's use of github.com/yuin/goldmark for Markdown handling.
package trajectory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
)

// Save writes events to path. A path ending in ".json" is written as a
// single JSON array; any other path is treated as a directory (created
// if absent) and written one file per event, named by the event ID
// zero-padded to 12 digits plus ".json" (eventstream's event keys use
// the same padding but no extension).
func Save(path string, events []*event.Event) error {
	if strings.HasSuffix(path, ".json") {
		raw, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return errs.NewStorageError("marshal trajectory", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.NewStorageError("create trajectory parent dir", err)
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return errs.NewStorageError("write trajectory file "+path, err)
		}
		return nil
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return errs.NewStorageError("create trajectory dir "+path, err)
	}
	for _, ev := range events {
		raw, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return errs.NewStorageError("marshal trajectory event", err)
		}
		name := fmt.Sprintf("%012d.json", ev.ID)
		if err := os.WriteFile(filepath.Join(path, name), raw, 0o644); err != nil {
			return errs.NewStorageError("write trajectory event "+name, err)
		}
	}
	return nil
}

// Load reads back whatever Save wrote, in ascending event-ID order.
func Load(path string) ([]*event.Event, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.NewStorageError("stat trajectory path "+path, err)
	}

	if !info.IsDir() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.NewStorageError("read trajectory file "+path, err)
		}
		var events []*event.Event
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, errs.NewStorageError("parse trajectory file "+path, err)
		}
		sortByID(events)
		return events, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.NewStorageError("read trajectory dir "+path, err)
	}
	events := make([]*event.Event, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(path, de.Name()))
		if err != nil {
			return nil, errs.NewStorageError("read trajectory event "+de.Name(), err)
		}
		var ev event.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, errs.NewStorageError("parse trajectory event "+de.Name(), err)
		}
		events = append(events, &ev)
	}
	sortByID(events)
	return events, nil
}

func sortByID(events []*event.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
}

// Replay appends every event at path onto stream, in order, as its
// initial prefix (spec.md §6 `replay_trajectory_path`, scenario S6):
// each event is re-assigned a fresh ID by the stream, and any Cause
// pointer is rewritten from the old ID to the corresponding new one so
// cause-precedes-effect survives the renumbering.
func Replay(ctx context.Context, stream *eventstream.EventStream, path string) error {
	events, err := Load(path)
	if err != nil {
		return err
	}
	oldToNew := make(map[int64]int64, len(events))
	for _, ev := range events {
		oldID := ev.ID
		fresh := *ev
		if ev.Cause != nil {
			if newCause, ok := oldToNew[*ev.Cause]; ok {
				fresh.Cause = &newCause
			}
		}
		newID, err := stream.Append(ctx, &fresh)
		if err != nil {
			return err
		}
		oldToNew[oldID] = newID
	}
	return nil
}

// Report renders events as a Markdown trajectory report: one section
// per event, in order, with its kind, source, and payload.
func Report(events []*event.Event) string {
	var b strings.Builder
	b.WriteString("# Trajectory\n\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "## %s %d: %s\n\n", ev.Variant, ev.ID, ev.Kind)
		fmt.Fprintf(&b, "- source: `%s`\n", ev.Source)
		if ev.Cause != nil {
			fmt.Fprintf(&b, "- cause: %s\n", strconv.FormatInt(*ev.Cause, 10))
		}
		if ev.SecurityRisk != "" {
			fmt.Fprintf(&b, "- security risk: `%s`\n", ev.SecurityRisk)
		}
		b.WriteString("\n```json\n")
		b.Write(ev.Payload)
		b.WriteString("\n```\n\n")
	}
	return b.String()
}

// RenderHTML converts a Markdown report (as produced by Report) to
// HTML, for front-doors that want to display it directly.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", errs.NewStorageError("render trajectory markdown", err)
	}
	return buf.String(), nil
}
