package container

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/docker/docker/client"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	storelocal "github.com/agentrt/agentrt/eventstream/store/local"
	"github.com/agentrt/agentrt/runtime"
)

const testCID = "cid123"

// fakeDocker binds a docker client to an httptest server, the same
// fixture shape the teacher uses to exercise workspaceRuntime without a
// real daemon.
func fakeDocker(t *testing.T, h http.HandlerFunc) (*client.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+parsed.Host),
		client.WithVersion("1.46"),
	)
	require.NoError(t, err)
	return cli, func() {
		_ = cli.Close()
		srv.Close()
	}
}

func newStream(t *testing.T) *eventstream.EventStream {
	t.Helper()
	store, err := storelocal.New(t.TempDir())
	require.NoError(t, err)
	es, err := eventstream.New(context.Background(), "sess", store)
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })
	return es
}

func TestRunCommandAttachesExecAndReturnsCommandOutput(t *testing.T) {
	var execIdx int
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/"+testCID+"/exec"):
			execIdx++
			fmt.Fprintf(w, `{"Id":"exec%d"}`, execIdx)
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/exec/exec1/start"):
			w.Header().Set("Content-Type", "application/vnd.docker.raw-stream")
			w.WriteHeader(http.StatusOK)
			// stdout frame: stream=1, size=2, payload "hi"
			w.Write([]byte{1, 0, 0, 0, 0, 0, 0, 2, 'h', 'i'})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/exec/exec1/json"):
			fmt.Fprint(w, `{"ExitCode":0,"Running":false}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
	cli, cleanup := fakeDocker(t, handler)
	defer cleanup()

	rt := &Runtime{
		cfg:         runtime.Config{},
		sessionID:   "sess",
		stream:      newStream(t),
		cli:         cli,
		containerID: testCID,
		hostWS:      t.TempDir(),
		connected:   true,
	}

	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "echo hi"})
	require.NoError(t, err)

	obs, err := rt.RunAction(context.Background(), action)
	require.NoError(t, err)
	require.Equal(t, event.ObservationCommandOutput, obs.Kind)

	var payload struct {
		Stdout   string `json:"stdout"`
		ExitCode int    `json:"exitCode"`
	}
	require.NoError(t, obs.UnmarshalPayload(&payload))
	require.Equal(t, "hi", payload.Stdout)
	require.Equal(t, 0, payload.ExitCode)
}

func TestRunActionRuntimeUnavailableBeforeConnect(t *testing.T) {
	rt := &Runtime{cfg: runtime.Config{}, sessionID: "sess", stream: newStream(t)}
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls"})
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), action)
	require.Error(t, err)
}

func TestRunActionRejectsActionOutsideAllowlist(t *testing.T) {
	rt := &Runtime{
		cfg:         runtime.Config{AllowedActionKinds: []string{event.ActionReadFile}},
		sessionID:   "sess",
		stream:      newStream(t),
		containerID: testCID,
		connected:   true,
	}
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": "ls"})
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), action)
	require.Error(t, err)
}

func TestRunActionConfirmationRequiredWhenUnconfirmed(t *testing.T) {
	rt := &Runtime{cfg: runtime.Config{}, sessionID: "sess", stream: newStream(t), containerID: testCID, connected: true}
	action, err := event.NewAction(event.SourceAgent, event.ActionRunCommand,
		map[string]any{"command": "ls"}, event.WithConfirmationState(event.ConfirmationUnconfirmed))
	require.NoError(t, err)
	_, err = rt.RunAction(context.Background(), action)
	require.Error(t, err)
}
