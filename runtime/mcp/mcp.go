// Package mcp is a Runtime variant that dispatches actions to an
// external Model Context Protocol tool server instead of a local or
// containerized sandbox, letting an operator plug in arbitrary tools
// (spec.md §9's "Runtime as an open hierarchy"). Grounded on the MCP
// client idiom in the opencode pack repo's internal/mcp/client.go:
// one sdkmcp.Client per Runtime, one ClientSession per configured
// server, tool names prefixed by server name to disambiguate.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/telemetry"
)

// Tag is the config.runtime value selecting this variant.
const Tag = "mcp"

// ServerConfig names one MCP tool server to connect to at Connect time.
// New builds the server list from runtime.Config.ExtraDeps (see
// parseServers).
type ServerConfig struct {
	Name    string
	Command []string
	Env     map[string]string
	URL     string // set instead of Command for an SSE/HTTP server
}

// Runtime dispatches "call_tool" actions, whose tool name has the form
// "<server>_<tool>", to a connected MCP server; every other action kind
// is ActionNotPermitted. File and trajectory
// operations are not backed by a filesystem; this variant only ever
// runs tools.
type Runtime struct {
	cfg       runtime.Config
	sessionID string
	stream    *eventstream.EventStream
	servers   []ServerConfig

	mu        sync.RWMutex
	client    *sdkmcp.Client
	sessions  map[string]*sdkmcp.ClientSession
	connected bool
}

// New constructs an mcp Runtime. Matches runtime.Factory. The server
// list is taken from cfg.ExtraDeps encoded as "name=command args..." or
// "name=https://..." pairs, matching the allowlist-style plain-string
// configuration the rest of runtime.Config uses.
func New(cfg runtime.Config, sessionID string, stream *eventstream.EventStream) (runtime.Runtime, error) {
	servers, err := parseServers(cfg.ExtraDeps)
	if err != nil {
		return nil, errs.NewConfigurationError("parse mcp server list", err)
	}
	return &Runtime{cfg: cfg, sessionID: sessionID, stream: stream, servers: servers}, nil
}

// Register installs this variant's factory under Tag.
func Register(reg *runtime.Registry) { reg.Register(Tag, New) }

func parseServers(extraDeps []string) ([]ServerConfig, error) {
	var out []ServerConfig
	for _, dep := range extraDeps {
		name, rest, ok := strings.Cut(dep, "=")
		if !ok {
			return nil, fmt.Errorf("malformed mcp server entry %q, want name=command", dep)
		}
		cfg := ServerConfig{Name: name}
		if strings.HasPrefix(rest, "http://") || strings.HasPrefix(rest, "https://") {
			cfg.URL = rest
		} else {
			cfg.Command = strings.Fields(rest)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// Connect dials every configured MCP server. A server that fails to
// connect is dropped with a warning rather than failing the whole
// Runtime — matching the opencode client's per-server fault isolation.
func (r *Runtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}

	r.client = sdkmcp.NewClient(&sdkmcp.Implementation{Name: "agentrt", Version: "0.1.0"}, nil)
	r.sessions = make(map[string]*sdkmcp.ClientSession)

	connectedAny := false
	for _, sc := range r.servers {
		transport, err := sc.transport()
		if err != nil {
			log.Warnf("mcp runtime: skip server %s: %v", sc.Name, err)
			continue
		}
		session, err := r.client.Connect(ctx, transport, nil)
		if err != nil {
			log.Warnf("mcp runtime: connect server %s failed: %v", sc.Name, err)
			continue
		}
		r.sessions[sc.Name] = session
		connectedAny = true
	}
	if len(r.servers) > 0 && !connectedAny {
		return errs.NewRuntimeUnavailable("no configured mcp server could be reached", nil)
	}
	r.connected = true
	return nil
}

func (sc ServerConfig) transport() (sdkmcp.Transport, error) {
	if sc.URL != "" {
		return &sdkmcp.SSEClientTransport{Endpoint: sc.URL}, nil
	}
	if len(sc.Command) == 0 {
		return nil, fmt.Errorf("server %s has neither URL nor command", sc.Name)
	}
	cmd := exec.Command(sc.Command[0], sc.Command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range sc.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return &sdkmcp.CommandTransport{Command: cmd}, nil
}

// Close disconnects every session. Idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil
	}
	for name, session := range r.sessions {
		if err := session.Close(); err != nil {
			log.Warnf("mcp runtime: close session %s: %v", name, err)
		}
	}
	r.sessions = nil
	r.connected = false
	return nil
}

// Pause is not supported: an MCP tool server has no suspend concept.
func (r *Runtime) Pause(ctx context.Context) error { return errs.NewNotSupported("mcp.pause") }

// Resume is not supported, mirroring Pause.
func (r *Runtime) Resume(ctx context.Context) error { return errs.NewNotSupported("mcp.resume") }

type callToolPayload struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// RunAction dispatches "call_tool" actions to the named server; all
// other action kinds are ActionNotPermitted since this variant does not
// model its own filesystem or shell.
func (r *Runtime) RunAction(ctx context.Context, action *event.Event) (*event.Event, error) {
	tracer := telemetry.Tracer("agentrt/runtime/mcp")
	ctx, span := tracer.Start(ctx, "mcp.run_action")
	defer span.End()

	r.mu.RLock()
	connected := r.connected
	r.mu.RUnlock()
	if !connected {
		return nil, errs.NewRuntimeUnavailable("mcp runtime not connected", nil)
	}
	if !r.cfg.Allows(action.Kind) {
		return nil, errs.NewActionNotPermitted(action.Kind)
	}
	if action.ConfirmationState == event.ConfirmationUnconfirmed {
		return nil, errs.NewConfirmationRequired(action.ID)
	}
	if action.Kind != event.ActionCallTool {
		return nil, errs.NewActionNotPermitted(action.Kind)
	}

	var payload callToolPayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed call_tool payload: "+err.Error())
	}

	server, toolName, err := r.resolveTool(payload.Tool)
	if err != nil {
		return errorObservation(action.ID, err.Error())
	}

	result, err := server.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      toolName,
		Arguments: payload.Arguments,
	})
	if err != nil {
		return nil, errs.NewRuntimeInternalError("mcp call_tool transport failure", err)
	}
	if result.IsError {
		return errorObservation(action.ID, extractText(result))
	}
	return event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{
		"stdout":   extractText(result),
		"exitCode": 0,
	}, event.WithCause(action.ID))
}

// resolveTool splits "<server>_<tool>" per the opencode prefixing
// convention and looks up the matching connected session.
func (r *Runtime) resolveTool(qualified string) (*sdkmcp.ClientSession, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, session := range r.sessions {
		prefix := name + "_"
		if strings.HasPrefix(qualified, prefix) {
			return session, strings.TrimPrefix(qualified, prefix), nil
		}
	}
	return nil, "", fmt.Errorf("no connected server serves tool %q", qualified)
}

func extractText(result *sdkmcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func errorObservation(causeID int64, message string) (*event.Event, error) {
	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationError, map[string]any{
		"errorKind": "execution_error",
		"message":   message,
	}, event.WithCause(causeID))
	if err != nil {
		return nil, errs.NewRuntimeInternalError("build error observation", err)
	}
	return obs, nil
}

// ListFiles is not supported: no filesystem is modeled by this variant.
func (r *Runtime) ListFiles(ctx context.Context, path string) ([]string, error) {
	return nil, errs.NewNotSupported("mcp.list_files")
}

// GetFile is not supported, mirroring ListFiles.
func (r *Runtime) GetFile(ctx context.Context, path string) ([]byte, error) {
	return nil, errs.NewNotSupported("mcp.get_file")
}

// VSCodeURL is not supported.
func (r *Runtime) VSCodeURL(ctx context.Context) (string, error) {
	return "", errs.NewNotSupported("mcp.vscode_url")
}

// GetTrajectory replays the full, unfiltered event history.
func (r *Runtime) GetTrajectory(ctx context.Context) ([]*event.Event, error) {
	evs, err := r.stream.GetEvents(ctx, 0, -1, &eventstream.Filter{IncludeBranches: true})
	if err != nil {
		log.Errorf("mcp runtime: get_trajectory failed: %v", err)
		return nil, err
	}
	return evs, nil
}
