package eventsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/conversation"
	"github.com/agentrt/agentrt/conversation/metadata/inmem"
	"github.com/agentrt/agentrt/frontdoor/eventsvc"
	"github.com/agentrt/agentrt/llm"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/runtime/local"
)

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Core.Runtime = local.Tag
	cfg.Core.DefaultAgent = "scripted"
	cfg.Core.MaxIterations = 5
	return cfg
}

func startBufconnServer(t *testing.T, mgr *conversation.Manager) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	gs := grpc.NewServer()
	eventsvc.Register(gs, eventsvc.NewServer(mgr))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)
	return lis
}

func dial(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestSubscribeStreamsTheInitialMessage(t *testing.T) {
	reg := runtime.NewRegistry()
	local.Register(reg)
	mgr := conversation.NewManager(conversation.ManagerConfig{
		WorkspaceRoot: t.TempDir(),
		Runtimes:      reg,
		LLMs:          llm.NewRegistry(),
		MetadataStore: inmem.New(),
	})
	t.Cleanup(mgr.Shutdown)

	cfg := testConfig()
	id, err := mgr.Create(context.Background(), "alice", cfg, nil, "investigate the bug")
	require.NoError(t, err)

	lis := startBufconnServer(t, mgr)
	cc := dial(t, lis)
	client := eventsvc.NewClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := client.Subscribe(ctx, id, 0)
	require.NoError(t, err)

	select {
	case msg, ok := <-msgs:
		require.True(t, ok)
		assert.NotNil(t, msg.Timestamp)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the first event")
	}
}
