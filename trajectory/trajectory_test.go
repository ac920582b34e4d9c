package trajectory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/store/local"
	"github.com/agentrt/agentrt/trajectory"
)

func buildTrajectory(t *testing.T) []*event.Event {
	t.Helper()
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	action.ID = 0
	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{"output": "hi"}, event.WithCause(0))
	require.NoError(t, err)
	obs.ID = 1
	return []*event.Event{action, obs}
}

func TestSaveAndLoadRoundTripAsSingleFile(t *testing.T) {
	events := buildTrajectory(t)
	path := filepath.Join(t.TempDir(), "trajectory.json")

	require.NoError(t, trajectory.Save(path, events))
	loaded, err := trajectory.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, event.ActionRunCommand, loaded[0].Kind)
	assert.Equal(t, event.ObservationCommandOutput, loaded[1].Kind)
	require.NotNil(t, loaded[1].Cause)
	assert.Equal(t, int64(0), *loaded[1].Cause)
}

func TestSaveAndLoadRoundTripAsDirectory(t *testing.T) {
	events := buildTrajectory(t)
	dir := filepath.Join(t.TempDir(), "trajectory-dir")

	require.NoError(t, trajectory.Save(dir, events))
	loaded, err := trajectory.Load(dir)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(0), loaded[0].ID)
	assert.Equal(t, int64(1), loaded[1].ID)
}

func TestReplayRewritesCauseToNewIDs(t *testing.T) {
	events := buildTrajectory(t)
	path := filepath.Join(t.TempDir(), "trajectory.json")
	require.NoError(t, trajectory.Save(path, events))

	store, err := local.New(t.TempDir())
	require.NoError(t, err)
	stream, err := eventstream.New(context.Background(), "sess-replay", store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })

	// Seed one unrelated event first so replay's fresh IDs don't
	// coincidentally match the saved trajectory's original IDs.
	seed, err := event.NewObservation(event.SourceUser, event.ObservationUserMessage, map[string]any{"text": "hi"})
	require.NoError(t, err)
	_, err = stream.Append(context.Background(), seed)
	require.NoError(t, err)

	require.NoError(t, trajectory.Replay(context.Background(), stream, path))

	all, err := stream.GetEvents(context.Background(), 0, -1, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	replayedAction := all[1]
	replayedObs := all[2]
	assert.Equal(t, event.ActionRunCommand, replayedAction.Kind)
	assert.Equal(t, event.ObservationCommandOutput, replayedObs.Kind)
	require.NotNil(t, replayedObs.Cause)
	assert.Equal(t, replayedAction.ID, *replayedObs.Cause)
	assert.NotEqual(t, int64(0), replayedAction.ID)
}

func TestReportAndRenderHTMLProduceNonEmptyOutput(t *testing.T) {
	events := buildTrajectory(t)
	md := trajectory.Report(events)
	assert.Contains(t, md, "run_command")
	assert.Contains(t, md, "command_output")

	html, err := trajectory.RenderHTML(md)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>")
}
