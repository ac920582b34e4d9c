package local_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	storelocal "github.com/agentrt/agentrt/eventstream/store/local"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/runtime/local"
)

func newRuntime(t *testing.T) runtime.Runtime {
	t.Helper()
	store, err := storelocal.New(t.TempDir())
	require.NoError(t, err)
	es, err := eventstream.New(context.Background(), "sess", store)
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })

	rt, err := local.New(runtime.Config{}, "sess", es)
	require.NoError(t, err)
	require.NoError(t, rt.Connect(context.Background()))
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt
}

func TestRunCommandProducesCommandOutput(t *testing.T) {
	rt := newRuntime(t)
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	action.ID = 1

	obs, err := rt.RunAction(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, event.ObservationCommandOutput, obs.Kind)
	require.NotNil(t, obs.Cause)
	assert.Equal(t, int64(1), *obs.Cause)

	var payload struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exitCode"`
	}
	require.NoError(t, obs.UnmarshalPayload(&payload))
	assert.Equal(t, "hi\n", payload.Stdout)
	assert.Equal(t, 0, payload.ExitCode)
}

func TestRunCommandNonZeroExit(t *testing.T) {
	rt := newRuntime(t)
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "exit 3"})
	require.NoError(t, err)

	obs, err := rt.RunAction(context.Background(), action)
	require.NoError(t, err, "non-zero exit is a value, not an error")
	var payload struct {
		ExitCode int `json:"exitCode"`
	}
	require.NoError(t, obs.UnmarshalPayload(&payload))
	assert.Equal(t, 3, payload.ExitCode)
}

func TestActionNotPermittedWhenOutsideAllowlist(t *testing.T) {
	store, err := storelocal.New(t.TempDir())
	require.NoError(t, err)
	es, err := eventstream.New(context.Background(), "sess", store)
	require.NoError(t, err)
	defer es.Close()

	rt, err := local.New(runtime.Config{AllowedActionKinds: []string{event.ActionReadFile}}, "sess", es)
	require.NoError(t, err)
	require.NoError(t, rt.Connect(context.Background()))
	defer rt.Close(context.Background())

	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls"})
	require.NoError(t, err)

	_, err = rt.RunAction(context.Background(), action)
	_, ok := errs.AsActionNotPermitted(err)
	assert.True(t, ok)
}

func TestConfirmationRequiredWhenUnconfirmed(t *testing.T) {
	rt := newRuntime(t)
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand,
		map[string]any{"command": "ls"}, event.WithConfirmationState(event.ConfirmationUnconfirmed))
	require.NoError(t, err)

	_, err = rt.RunAction(context.Background(), action)
	_, ok := errs.AsConfirmationRequired(err)
	assert.True(t, ok)
}

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	rt := newRuntime(t)

	write, err := event.NewAction(event.SourceAgent, event.ActionWriteFile, map[string]any{
		"path": "notes/a.txt", "content": "hello world",
	})
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), write)
	require.NoError(t, err)

	read, err := event.NewAction(event.SourceAgent, event.ActionReadFile, map[string]any{"path": "notes/a.txt"})
	require.NoError(t, err)
	obs, err := rt.RunAction(context.Background(), read)
	require.NoError(t, err)

	var payload struct {
		Content string `json:"content"`
	}
	require.NoError(t, obs.UnmarshalPayload(&payload))
	assert.Equal(t, "hello world", payload.Content)
}

func TestEditFileSplicesByteRange(t *testing.T) {
	rt := newRuntime(t)

	write, err := event.NewAction(event.SourceAgent, event.ActionWriteFile, map[string]any{
		"path": "f.txt", "content": "0123456789",
	})
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), write)
	require.NoError(t, err)

	edit, err := event.NewAction(event.SourceAgent, event.ActionEditFile, map[string]any{
		"path": "f.txt", "startByte": 2, "endByte": 5, "newContent": "XX",
	})
	require.NoError(t, err)
	obs, err := rt.RunAction(context.Background(), edit)
	require.NoError(t, err)

	var payload struct {
		Content string `json:"content"`
	}
	require.NoError(t, obs.UnmarshalPayload(&payload))
	assert.Equal(t, "01XX56789", payload.Content)
}

func TestBrowseIsNoOpObservation(t *testing.T) {
	rt := newRuntime(t)
	action, err := event.NewAction(event.SourceAgent, event.ActionBrowse, map[string]any{"op": "navigate"})
	require.NoError(t, err)

	obs, err := rt.RunAction(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, event.ObservationError, obs.Kind)
}

func TestRuntimeUnavailableBeforeConnect(t *testing.T) {
	store, err := storelocal.New(t.TempDir())
	require.NoError(t, err)
	es, err := eventstream.New(context.Background(), "sess", store)
	require.NoError(t, err)
	defer es.Close()

	rt, err := local.New(runtime.Config{}, "sess", es)
	require.NoError(t, err)

	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls"})
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), action)
	_, ok := errs.AsRuntimeUnavailable(err)
	assert.True(t, ok)
}

func TestPauseResumeNotSupported(t *testing.T) {
	rt := newRuntime(t)
	_, ok := errs.AsNotSupported(rt.Pause(context.Background()))
	assert.True(t, ok)
	_, ok = errs.AsNotSupported(rt.Resume(context.Background()))
	assert.True(t, ok)
}
