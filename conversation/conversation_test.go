package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/conversation"
	"github.com/agentrt/agentrt/conversation/metadata/inmem"
	"github.com/agentrt/agentrt/llm"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/runtime/local"
	"github.com/agentrt/agentrt/state"
)

func newManager(t *testing.T, limits conversation.Limits) *conversation.Manager {
	t.Helper()
	reg := runtime.NewRegistry()
	local.Register(reg)
	m := conversation.NewManager(conversation.ManagerConfig{
		WorkspaceRoot: t.TempDir(),
		Runtimes:      reg,
		LLMs:          llm.NewRegistry(),
		Limits:        limits,
	})
	t.Cleanup(m.Shutdown)
	return m
}

func baseConfig() config.Config {
	cfg := config.Config{}
	cfg.Core.Runtime = local.Tag
	cfg.Core.MaxIterations = 5
	cfg.Core.DefaultAgent = "scripted"
	return cfg
}

func TestCreateRunsToFirstHaltAndIsListable(t *testing.T) {
	m := newManager(t, conversation.Limits{})

	id, err := m.Create(context.Background(), "alice", baseConfig(), nil, "do the thing")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	summary, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "alice", summary.UserID)
	assert.Equal(t, state.AgentStateFinished, summary.AgentState)

	all := m.List(conversation.ListFilter{UserID: "alice"})
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
}

func TestCreateEnforcesPerUserLimit(t *testing.T) {
	m := newManager(t, conversation.Limits{MaxPerUser: 1})

	_, err := m.Create(context.Background(), "bob", baseConfig(), nil, "first")
	require.NoError(t, err)

	_, err = m.Create(context.Background(), "bob", baseConfig(), nil, "second")
	require.Error(t, err)
}

func TestCloseEvictsAndFreesUserSlot(t *testing.T) {
	m := newManager(t, conversation.Limits{MaxPerUser: 1})

	id, err := m.Create(context.Background(), "carol", baseConfig(), nil, "first")
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background(), id))
	_, err = m.Get(id)
	require.Error(t, err)

	// The slot carol held should be free again.
	_, err = m.Create(context.Background(), "carol", baseConfig(), nil, "second")
	require.NoError(t, err)
}

func TestSendMessageOnUnknownConversationReturnsNotFound(t *testing.T) {
	m := newManager(t, conversation.Limits{})
	err := m.SendMessage(context.Background(), "does-not-exist", "hello")
	require.Error(t, err)
}

func TestPauseAndResumeRoundTrip(t *testing.T) {
	m := newManager(t, conversation.Limits{})
	cfg := baseConfig()
	cfg.Core.MaxIterations = 0 // iteration 0 stub still finishes immediately for scripted

	id, err := m.Create(context.Background(), "dave", cfg, nil, "go")
	require.NoError(t, err)

	// Finished conversations reject Pause/Resume as no-ops rather than erroring.
	require.NoError(t, m.Pause(context.Background(), id))
	require.NoError(t, m.Resume(context.Background(), id))
}

func TestEventsReturnsTheInitialUserMessage(t *testing.T) {
	m := newManager(t, conversation.Limits{})
	id, err := m.Create(context.Background(), "erin", baseConfig(), nil, "investigate the bug")
	require.NoError(t, err)

	events, err := m.Events(context.Background(), id, 0, -1, nil)
	require.NoError(t, err)
	require.NotEmpty(t, events)
}

func TestCreateRoutesFileStoreTagThroughStoreselect(t *testing.T) {
	m := newManager(t, conversation.Limits{})
	cfg := baseConfig()
	cfg.Core.FileStore = "sqlite"
	cfg.Core.FileStorePath = t.TempDir()

	id, err := m.Create(context.Background(), "gus", cfg, nil, "do the thing")
	require.NoError(t, err)

	events, err := m.Events(context.Background(), id, 0, -1, nil)
	require.NoError(t, err)
	require.NotEmpty(t, events)
}

func TestMetadataStoreReceivesUpsertsAcrossLifecycle(t *testing.T) {
	reg := runtime.NewRegistry()
	local.Register(reg)
	store := inmem.New()
	m := conversation.NewManager(conversation.ManagerConfig{
		WorkspaceRoot: t.TempDir(),
		Runtimes:      reg,
		LLMs:          llm.NewRegistry(),
		MetadataStore: store,
	})
	t.Cleanup(m.Shutdown)

	id, err := m.Create(context.Background(), "fay", baseConfig(), nil, "go")
	require.NoError(t, err)

	rec, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "fay", rec.UserID)
	assert.Equal(t, state.AgentStateFinished, rec.AgentState)
	createdAt := rec.CreatedAt

	require.NoError(t, m.Close(context.Background(), id))
	rec, err = store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(createdAt), "CreatedAt must survive later upserts")
}

func TestShutdownStopsTheSweepScheduler(t *testing.T) {
	m := newManager(t, conversation.Limits{})
	done := make(chan struct{})
	go func() {
		m.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
}
