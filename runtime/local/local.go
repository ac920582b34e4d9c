// Package local is an in-process, os/exec-backed Runtime for trusted,
// non-sandboxed development use — no container isolation, matching the
// "in-process local" variant spec.md §4.2 calls for. Grounded on the
// teacher codeexecutor package's WorkspaceExecutor idiom: one scratch
// directory per session, RunProgramSpec-shaped command execution, and
// the same "workspace.*" tracing span names.
package local

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/telemetry"
)

// Tag is the config.runtime value selecting this variant.
const Tag = "local"

// Runtime runs actions as subprocesses rooted at a per-session scratch
// directory. Not concurrency-safe across RunAction calls by design
// (spec.md §5: "a Runtime is not required to be concurrent-safe across
// actions"); callers serialize.
type Runtime struct {
	cfg       runtime.Config
	sessionID string
	stream    *eventstream.EventStream

	mu        sync.Mutex
	workspace string
	connected bool
	paused    bool
}

// New constructs a local Runtime. Matches runtime.Factory.
func New(cfg runtime.Config, sessionID string, stream *eventstream.EventStream) (runtime.Runtime, error) {
	return &Runtime{cfg: cfg, sessionID: sessionID, stream: stream}, nil
}

// Register installs this variant's factory under Tag.
func Register(reg *runtime.Registry) { reg.Register(Tag, New) }

// Connect creates the session's scratch workspace directory. Idempotent.
func (r *Runtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}
	dir, err := os.MkdirTemp("", "agentrt-local-"+r.sessionID+"-")
	if err != nil {
		return errs.NewRuntimeUnavailable("create local workspace", err)
	}
	r.workspace = dir
	r.connected = true
	return nil
}

// Close removes the scratch workspace. Idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil
	}
	err := os.RemoveAll(r.workspace)
	r.connected = false
	if err != nil {
		return errs.NewRuntimeInternalError("remove local workspace", err)
	}
	return nil
}

// Pause is not supported by the local variant: there is nothing to
// suspend that os/exec's process tree doesn't already own.
func (r *Runtime) Pause(ctx context.Context) error { return errs.NewNotSupported("local.pause") }

// Resume is not supported, mirroring Pause.
func (r *Runtime) Resume(ctx context.Context) error { return errs.NewNotSupported("local.resume") }

// RunAction dispatches action per spec.md §4.2's four-step contract.
func (r *Runtime) RunAction(ctx context.Context, action *event.Event) (*event.Event, error) {
	tracer := telemetry.Tracer("agentrt/runtime/local")
	ctx, span := tracer.Start(ctx, "workspace.run")
	defer span.End()

	r.mu.Lock()
	connected := r.connected
	ws := r.workspace
	r.mu.Unlock()
	if !connected {
		return nil, errs.NewRuntimeUnavailable("local runtime not connected", nil)
	}
	if !r.cfg.Allows(action.Kind) {
		return nil, errs.NewActionNotPermitted(action.Kind)
	}
	if action.ConfirmationState == event.ConfirmationUnconfirmed {
		return nil, errs.NewConfirmationRequired(action.ID)
	}

	switch action.Kind {
	case event.ActionRunCommand:
		return r.runCommand(ctx, ws, action)
	case event.ActionWriteFile:
		return r.writeFile(ws, action)
	case event.ActionReadFile:
		return r.readFile(ws, action)
	case event.ActionEditFile:
		return r.editFile(ws, action)
	case event.ActionBrowse:
		return errorObservation(action.ID, "browser plugin not configured for the local runtime")
	case event.ActionIPython:
		return errorObservation(action.ID, "ipython plugin not configured for the local runtime")
	default:
		return nil, errs.NewActionNotPermitted(action.Kind)
	}
}

type runCommandPayload struct {
	Command    string            `json:"command"`
	Cwd        string            `json:"cwd"`
	Env        map[string]string `json:"env"`
	TimeoutSec float64           `json:"timeoutSec"`
	Stream     bool              `json:"stream"`
}

func (r *Runtime) runCommand(ctx context.Context, ws string, action *event.Event) (*event.Event, error) {
	var payload runCommandPayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed run_command payload: "+err.Error())
	}

	timeout := r.cfg.DefaultTimeout
	if payload.TimeoutSec > 0 {
		timeout = time.Duration(payload.TimeoutSec * float64(time.Second))
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd := ws
	if payload.Cwd != "" {
		cwd = filepath.Join(ws, payload.Cwd)
	}
	cmd := exec.CommandContext(runCtx, "sh", "-c", payload.Command)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	for k, v := range payload.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if !timedOut {
			return nil, errs.NewRuntimeInternalError("run_command exec failure", runErr)
		}
	}

	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{
		"stdout":   stdout.String(),
		"stderr":   stderr.String(),
		"exitCode": exitCode,
		"timedOut": timedOut,
	}, event.WithCause(action.ID))
	if err != nil {
		return nil, errs.NewRuntimeInternalError("build command_output observation", err)
	}
	return obs, nil
}

type writeFilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Runtime) writeFile(ws string, action *event.Event) (*event.Event, error) {
	var payload writeFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed write_file payload: "+err.Error())
	}
	target := filepath.Join(ws, payload.Path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errorObservation(action.ID, "mkdir for write_file: "+err.Error())
	}
	if err := os.WriteFile(target, []byte(payload.Content), 0o644); err != nil {
		return errorObservation(action.ID, "write_file: "+err.Error())
	}
	return event.NewObservation(event.SourceEnvironment, event.ObservationFileContent, map[string]any{
		"path":    payload.Path,
		"content": payload.Content,
	}, event.WithCause(action.ID))
}

type readFilePayload struct {
	Path  string `json:"path"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

func (r *Runtime) readFile(ws string, action *event.Event) (*event.Event, error) {
	var payload readFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed read_file payload: "+err.Error())
	}
	data, err := os.ReadFile(filepath.Join(ws, payload.Path))
	if err != nil {
		return errorObservation(action.ID, "read_file: "+err.Error())
	}
	data = sliceRange(data, payload.Start, payload.End)
	return event.NewObservation(event.SourceEnvironment, event.ObservationFileContent, map[string]any{
		"path":    payload.Path,
		"content": string(data),
	}, event.WithCause(action.ID))
}

type editFilePayload struct {
	Path       string `json:"path"`
	StartByte  int    `json:"startByte"`
	EndByte    int    `json:"endByte"`
	NewContent string `json:"newContent"`
}

func (r *Runtime) editFile(ws string, action *event.Event) (*event.Event, error) {
	var payload editFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed edit_file payload: "+err.Error())
	}
	target := filepath.Join(ws, payload.Path)
	data, err := os.ReadFile(target)
	if err != nil {
		return errorObservation(action.ID, "edit_file read: "+err.Error())
	}
	start, end := payload.StartByte, payload.EndByte
	if start < 0 || start > len(data) || end < start || end > len(data) {
		return errorObservation(action.ID, "edit_file: byte range out of bounds")
	}
	var out bytes.Buffer
	out.Write(data[:start])
	out.WriteString(payload.NewContent)
	out.Write(data[end:])
	if err := os.WriteFile(target, out.Bytes(), 0o644); err != nil {
		return errorObservation(action.ID, "edit_file write: "+err.Error())
	}
	return event.NewObservation(event.SourceEnvironment, event.ObservationFileContent, map[string]any{
		"path":    payload.Path,
		"content": out.String(),
	}, event.WithCause(action.ID))
}

func sliceRange(data []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(data) {
		end = len(data)
	}
	if start > end {
		start = end
	}
	return data[start:end]
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

// ListFiles returns workspace-relative paths matching a doublestar glob
// pattern rooted at path (e.g. "**/*.go").
func (r *Runtime) ListFiles(ctx context.Context, path string) ([]string, error) {
	r.mu.Lock()
	ws := r.workspace
	r.mu.Unlock()
	pattern := path
	if pattern == "" {
		pattern = "**"
	}
	matches, err := doublestar.Glob(os.DirFS(ws), pattern)
	if err != nil {
		return nil, errs.NewExecutionError("list_files", "invalid glob pattern", err)
	}
	return matches, nil
}

// GetFile returns the raw bytes of a workspace-relative file.
func (r *Runtime) GetFile(ctx context.Context, path string) ([]byte, error) {
	r.mu.Lock()
	ws := r.workspace
	r.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(ws, path))
	if err != nil {
		return nil, errs.NewNotFound("file " + path)
	}
	return data, nil
}

// VSCodeURL is not supported by the local variant — there is no remote
// IDE endpoint to expose.
func (r *Runtime) VSCodeURL(ctx context.Context) (string, error) {
	return "", errs.NewNotSupported("local.vscode_url")
}

// GetTrajectory replays the full, unfiltered event history from the
// backing stream.
func (r *Runtime) GetTrajectory(ctx context.Context) ([]*event.Event, error) {
	evs, err := r.stream.GetEvents(ctx, 0, -1, &eventstream.Filter{IncludeBranches: true})
	if err != nil {
		log.Errorf("local runtime: get_trajectory failed: %v", err)
		return nil, err
	}
	return evs, nil
}
