package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/state"
)

func TestExitCodeForMapsTerminalStates(t *testing.T) {
	assert.Equal(t, exitFinished, exitCodeFor(state.AgentStateFinished))
	assert.Equal(t, exitStopped, exitCodeFor(state.AgentStateStopped))
	assert.Equal(t, exitStopped, exitCodeFor(state.AgentStateRejected))
	assert.Equal(t, exitError, exitCodeFor(state.AgentStateError))
	assert.Equal(t, exitStopped, exitCodeFor(state.AgentStateAwaitingUserInput))
}

func TestBuildAgentDefaultsToScriptedStub(t *testing.T) {
	ag, err := buildAgent(config.Config{})
	require.NoError(t, err)
	require.NotNil(t, ag)
}

func TestBuildAgentRejectsUnknownTag(t *testing.T) {
	cfg := config.Config{}
	cfg.Core.DefaultAgent = "does-not-exist"
	_, err := buildAgent(cfg)
	require.Error(t, err)
}

func TestBuildAnalyzerRespectsEmptyTag(t *testing.T) {
	assert.Nil(t, buildAnalyzer(config.Config{}))

	cfg := config.Config{}
	cfg.Security.SecurityAnalyzer = "default"
	assert.NotNil(t, buildAnalyzer(cfg))
}
