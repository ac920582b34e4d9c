package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/event"
)

func TestNewActionValidatesPayload(t *testing.T) {
	_, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{
		"command": "echo hi",
	})
	require.NoError(t, err)

	_, err = event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{
		"cwd": "/tmp",
	})
	assert.Error(t, err, "missing required 'command' property should fail schema validation")
}

func TestNewObservationValidatesPayload(t *testing.T) {
	_, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{
		"stdout":   "hi\n",
		"exitCode": 0,
	})
	require.NoError(t, err)
}

func TestUnregisteredKindIsAcceptedUnvalidated(t *testing.T) {
	ev, err := event.NewAction(event.SourceAgent, "custom_plugin_kind", map[string]any{"anything": true})
	require.NoError(t, err)
	assert.Equal(t, "custom_plugin_kind", ev.Kind)
}

func TestOptionsAndAccessors(t *testing.T) {
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls"})
	require.NoError(t, err)
	action.ID = 5

	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput,
		map[string]any{"stdout": "", "exitCode": 0},
		event.WithCause(action.ID),
	)
	require.NoError(t, err)

	require.NotNil(t, obs.Cause)
	assert.Equal(t, action.ID, *obs.Cause)
	assert.True(t, action.IsAction())
	assert.False(t, action.IsObservation())
	assert.True(t, obs.IsObservation())

	risky, err := event.NewAction(event.SourceAgent, event.ActionRunCommand,
		map[string]any{"command": "rm -rf /"},
		event.WithSecurityRisk(event.RiskHigh),
		event.WithConfirmationState(event.ConfirmationUnconfirmed),
	)
	require.NoError(t, err)
	assert.Equal(t, event.RiskHigh, risky.SecurityRisk)
	assert.Equal(t, event.ConfirmationUnconfirmed, risky.ConfirmationState)

	branched, err := event.NewAction(event.SourceAgent, event.ActionMessage,
		map[string]any{"text": "hello"}, event.WithBranch("child-1"))
	require.NoError(t, err)
	assert.Equal(t, "child-1", branched.Branch)
}

func TestCloneIsDeepCopy(t *testing.T) {
	original, err := event.NewAction(event.SourceAgent, event.ActionRunCommand,
		map[string]any{"command": "ls"}, event.WithCause(3))
	require.NoError(t, err)

	clone := original.Clone()
	require.NotNil(t, clone.Cause)
	*clone.Cause = 99
	clone.Payload[0] = '!'

	require.NotNil(t, original.Cause)
	assert.Equal(t, int64(3), *original.Cause, "mutating clone's Cause must not affect original")
	assert.NotEqual(t, byte('!'), original.Payload[0], "mutating clone's Payload must not affect original")
}

func TestCloneNil(t *testing.T) {
	var e *event.Event
	assert.Nil(t, e.Clone())
	assert.False(t, e.IsAction())
	assert.False(t, e.IsObservation())
}

func TestUnmarshalPayload(t *testing.T) {
	ev, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls -la"})
	require.NoError(t, err)

	var payload struct {
		Command string `json:"command"`
	}
	require.NoError(t, ev.UnmarshalPayload(&payload))
	assert.Equal(t, "ls -la", payload.Command)
}
