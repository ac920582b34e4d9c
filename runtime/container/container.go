// Package container is a Docker-backed, isolated Runtime variant: one
// container per session, image selection driven by the deterministic
// tag policy in runtime/imagetag. Grounded on the teacher's
// codeexecutor/container workspaceRuntime (exec/stdcopy dispatch, tar
// staging) and on the docker package's client construction, build, and
// pull idiom from the oubliette pack repo.
package container

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/runtime/imagetag"
	"github.com/agentrt/agentrt/telemetry"
)

// Tag is the config.runtime value selecting this variant.
const Tag = "container"

const guestWorkspace = "/mnt/run"

// Runtime drives one Docker container per session. Not concurrency-safe
// across RunAction calls by design; the controller serializes calls per
// instance (spec.md §5).
type Runtime struct {
	cfg       runtime.Config
	sessionID string
	stream    *eventstream.EventStream

	mu          sync.Mutex
	cli         *client.Client
	containerID string
	hostWS      string
	connected   bool
	paused      bool
}

// New constructs a container Runtime. Matches runtime.Factory.
func New(cfg runtime.Config, sessionID string, stream *eventstream.EventStream) (runtime.Runtime, error) {
	return &Runtime{cfg: cfg, sessionID: sessionID, stream: stream}, nil
}

// Register installs this variant's factory under Tag.
func Register(reg *runtime.Registry) { reg.Register(Tag, New) }

// Connect resolves the image per the tag policy (building or pulling it
// if absent), creates, and starts the session's container.
func (r *Runtime) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errs.NewRuntimeUnavailable("create docker client", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return errs.NewRuntimeUnavailable("docker daemon unreachable", err)
	}

	imageTag, err := r.resolveImage(ctx, cli)
	if err != nil {
		return errs.NewRuntimeUnavailable("resolve sandbox image", err)
	}

	hostWS, err := os.MkdirTemp("", "agentrt-container-"+r.sessionID+"-")
	if err != nil {
		return errs.NewRuntimeUnavailable("create host workspace", err)
	}

	var mounts []mount.Mount
	for _, v := range r.cfg.Volumes {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   v.HostPath,
			Target:   v.GuestPath,
			ReadOnly: v.Mode == "ro",
		})
	}
	mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: hostWS, Target: guestWorkspace})

	var env []string
	for k, v := range r.cfg.StartupEnvVars {
		env = append(env, k+"="+v)
	}

	containerCfg := &dockercontainer.Config{
		Image:      imageTag,
		Entrypoint: []string{"sleep", "infinity"},
		Env:        env,
		WorkingDir: guestWorkspace,
	}
	hostCfg := &dockercontainer.HostConfig{
		Mounts:      mounts,
		AutoRemove:  false,
		NetworkMode: "bridge",
	}
	resp, err := cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "agentrt-"+r.sessionID)
	if err != nil {
		os.RemoveAll(hostWS)
		return errs.NewRuntimeUnavailable("create sandbox container", err)
	}
	if err := cli.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		os.RemoveAll(hostWS)
		return errs.NewRuntimeUnavailable("start sandbox container", err)
	}

	r.cli = cli
	r.containerID = resp.ID
	r.hostWS = hostWS
	r.connected = true
	return nil
}

// resolveImage applies runtime/imagetag.Resolve against the Docker image
// store. A source_match plan uses the matched image as-is; every other
// plan, including a lock_hash or version+base match, builds plan.Tag
// from BaseImage, so a matched intermediate image is not used as a
// build base.
func (r *Runtime) resolveImage(ctx context.Context, cli *client.Client) (string, error) {
	if r.cfg.RuntimeImage != "" {
		return r.cfg.RuntimeImage, nil
	}
	keys := imagetag.Keys{
		Version:    r.cfg.Version,
		LockHash:   r.cfg.LockHash,
		SourceHash: r.cfg.SourceHash,
		Base:       r.cfg.BaseImage,
	}
	exists := func(tag string) (bool, error) {
		_, err := cli.ImageInspect(ctx, tag)
		if err != nil {
			if client.IsErrNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	plan, err := imagetag.Resolve(keys, exists)
	if err != nil {
		return "", err
	}
	if plan.Strategy == imagetag.StrategySourceMatch {
		return plan.Tag, nil
	}
	if err := r.buildFromBase(ctx, cli, plan.Tag); err != nil {
		return "", err
	}
	return plan.Tag, nil
}

// buildFromBase produces plan.Tag from r.cfg.BaseImage via a minimal
// build context; pulls the base first if absent locally.
func (r *Runtime) buildFromBase(ctx context.Context, cli *client.Client, tag string) error {
	base := r.cfg.BaseImage
	if base == "" {
		return fmt.Errorf("no sandbox.base_image configured and no cached image matched")
	}
	if _, err := cli.ImageInspect(ctx, base); err != nil {
		if !client.IsErrNotFound(err) {
			return err
		}
		reader, err := cli.ImagePull(ctx, base, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("pull base image %s: %w", base, err)
		}
		defer reader.Close()
		if _, err := io.Copy(io.Discard, reader); err != nil {
			return fmt.Errorf("read pull output: %w", err)
		}
	}

	dockerfile := "FROM " + base + "\n"
	for _, dep := range r.cfg.ExtraDeps {
		dockerfile += "RUN " + dep + "\n"
	}

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	hdr := &tar.Header{Name: "Dockerfile", Size: int64(len(dockerfile)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	buildOpts := types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
		Version:    types.BuilderBuildKit,
	}
	resp, err := cli.ImageBuild(ctx, bytes.NewReader(tarBuf.Bytes()), buildOpts)
	if err != nil {
		return fmt.Errorf("build sandbox image: %w", err)
	}
	defer resp.Body.Close()

	type buildMessage struct {
		Stream string `json:"stream"`
		Error  string `json:"error"`
	}
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("build error: %s", msg.Error)
		}
	}
	return nil
}

// Close stops and removes the container and its host scratch dir.
// Idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return nil
	}
	var firstErr error
	if err := r.cli.ContainerStop(ctx, r.containerID, dockercontainer.StopOptions{}); err != nil {
		firstErr = err
	}
	if err := r.cli.ContainerRemove(ctx, r.containerID, dockercontainer.RemoveOptions{Force: true}); err != nil && firstErr == nil {
		firstErr = err
	}
	os.RemoveAll(r.hostWS)
	r.cli.Close()
	r.connected = false
	if firstErr != nil {
		return errs.NewRuntimeInternalError("close sandbox container", firstErr)
	}
	return nil
}

// Pause suspends the container via the Docker pause API.
func (r *Runtime) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return errs.NewRuntimeUnavailable("container runtime not connected", nil)
	}
	if err := r.cli.ContainerPause(ctx, r.containerID); err != nil {
		return errs.NewRuntimeInternalError("pause sandbox container", err)
	}
	r.paused = true
	return nil
}

// Resume reverses Pause.
func (r *Runtime) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		return errs.NewRuntimeUnavailable("container runtime not connected", nil)
	}
	if err := r.cli.ContainerUnpause(ctx, r.containerID); err != nil {
		return errs.NewRuntimeInternalError("resume sandbox container", err)
	}
	r.paused = false
	return nil
}

// RunAction dispatches action per spec.md §4.2's four-step contract,
// executing file and command actions via ContainerExec.
func (r *Runtime) RunAction(ctx context.Context, action *event.Event) (*event.Event, error) {
	tracer := telemetry.Tracer("agentrt/runtime/container")
	ctx, span := tracer.Start(ctx, "container.run")
	defer span.End()
	span.SetAttributes(attribute.String("action.kind", action.Kind))

	r.mu.Lock()
	connected := r.connected
	cli := r.cli
	containerID := r.containerID
	r.mu.Unlock()
	if !connected {
		return nil, errs.NewRuntimeUnavailable("container runtime not connected", nil)
	}
	if !r.cfg.Allows(action.Kind) {
		return nil, errs.NewActionNotPermitted(action.Kind)
	}
	if action.ConfirmationState == event.ConfirmationUnconfirmed {
		return nil, errs.NewConfirmationRequired(action.ID)
	}

	var obs *event.Event
	var err error
	switch action.Kind {
	case event.ActionRunCommand:
		obs, err = r.runCommand(ctx, cli, containerID, action)
	case event.ActionWriteFile:
		obs, err = r.writeFile(ctx, cli, containerID, action)
	case event.ActionReadFile:
		obs, err = r.readFile(ctx, cli, containerID, action)
	case event.ActionEditFile:
		obs, err = r.editFile(ctx, cli, containerID, action)
	case event.ActionBrowse:
		obs, err = errorObservation(action.ID, "browser plugin not configured for the container runtime")
	case event.ActionIPython:
		obs, err = errorObservation(action.ID, "ipython plugin not configured for the container runtime")
	default:
		return nil, errs.NewActionNotPermitted(action.Kind)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return obs, err
}

type runCommandPayload struct {
	Command string            `json:"command"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

func (r *Runtime) runCommand(ctx context.Context, cli *client.Client, containerID string, action *event.Event) (*event.Event, error) {
	var payload runCommandPayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed run_command payload: "+err.Error())
	}
	cwd := guestWorkspace
	if payload.Cwd != "" {
		cwd = filepath.ToSlash(filepath.Join(guestWorkspace, payload.Cwd))
	}
	var env []string
	for k, v := range payload.Env {
		env = append(env, k+"="+v)
	}
	stdout, stderr, exitCode, err := r.execCmd(ctx, cli, containerID, []string{"/bin/sh", "-c", payload.Command}, cwd, env)
	if err != nil {
		return nil, errs.NewRuntimeInternalError("run_command exec failure", err)
	}
	obs, buildErr := event.NewObservation(event.SourceEnvironment, event.ObservationCommandOutput, map[string]any{
		"stdout":   stdout,
		"stderr":   stderr,
		"exitCode": exitCode,
	}, event.WithCause(action.ID))
	if buildErr != nil {
		return nil, errs.NewRuntimeInternalError("build command_output observation", buildErr)
	}
	return obs, nil
}

func (r *Runtime) execCmd(ctx context.Context, cli *client.Client, containerID string, argv []string, cwd string, env []string) (string, string, int, error) {
	execCfg := dockercontainer.ExecOptions{
		Cmd:          argv,
		Env:          env,
		WorkingDir:   cwd,
		AttachStdout: true,
		AttachStderr: true,
	}
	ex, err := cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return "", "", 0, err
	}
	attach, err := cli.ContainerExecAttach(ctx, ex.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return "", "", 0, err
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", "", 0, err
	}
	insp, err := cli.ContainerExecInspect(ctx, ex.ID)
	if err != nil {
		return stdout.String(), stderr.String(), 0, err
	}
	return stdout.String(), stderr.String(), insp.ExitCode, nil
}

type writeFilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r *Runtime) writeFile(ctx context.Context, cli *client.Client, containerID string, action *event.Event) (*event.Event, error) {
	var payload writeFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed write_file payload: "+err.Error())
	}
	dest := filepath.ToSlash(filepath.Join(guestWorkspace, payload.Path))
	mkdir := []string{"/bin/sh", "-c", "mkdir -p \"$(dirname '" + dest + "')\""}
	if _, _, _, err := r.execCmd(ctx, cli, containerID, mkdir, guestWorkspace, nil); err != nil {
		return errorObservation(action.ID, "write_file mkdir: "+err.Error())
	}
	tr, err := tarSingleFile(dest, []byte(payload.Content))
	if err != nil {
		return errorObservation(action.ID, "write_file tar: "+err.Error())
	}
	if err := cli.CopyToContainer(ctx, containerID, "/", tr, dockercontainer.CopyToContainerOptions{}); err != nil {
		return errorObservation(action.ID, "write_file copy: "+err.Error())
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

func (r *Runtime) readFile(ctx context.Context, cli *client.Client, containerID string, action *event.Event) (*event.Event, error) {
	var payload readFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed read_file payload: "+err.Error())
	}
	src := filepath.ToSlash(filepath.Join(guestWorkspace, payload.Path))
	data, err := r.copyFileOut(ctx, cli, containerID, src)
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

func (r *Runtime) editFile(ctx context.Context, cli *client.Client, containerID string, action *event.Event) (*event.Event, error) {
	var payload editFilePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return errorObservation(action.ID, "malformed edit_file payload: "+err.Error())
	}
	dest := filepath.ToSlash(filepath.Join(guestWorkspace, payload.Path))
	data, err := r.copyFileOut(ctx, cli, containerID, dest)
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

	tr, err := tarSingleFile(dest, out.Bytes())
	if err != nil {
		return errorObservation(action.ID, "edit_file tar: "+err.Error())
	}
	if err := cli.CopyToContainer(ctx, containerID, "/", tr, dockercontainer.CopyToContainerOptions{}); err != nil {
		return errorObservation(action.ID, "edit_file copy: "+err.Error())
	}
	return event.NewObservation(event.SourceEnvironment, event.ObservationFileContent, map[string]any{
		"path":    payload.Path,
		"content": out.String(),
	}, event.WithCause(action.ID))
}

func (r *Runtime) copyFileOut(ctx context.Context, cli *client.Client, containerID, fullPath string) ([]byte, error) {
	rc, _, err := cli.CopyFromContainer(ctx, containerID, fullPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err != nil {
			return nil, err
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil && err != io.EOF {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func tarSingleFile(absPath string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: absPath, Size: int64(len(content)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(content); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
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

// ListFiles returns workspace-relative paths matching a doublestar glob,
// read from the host-side bind mount rather than a container exec.
func (r *Runtime) ListFiles(ctx context.Context, path string) ([]string, error) {
	r.mu.Lock()
	hostWS := r.hostWS
	r.mu.Unlock()
	pattern := path
	if pattern == "" {
		pattern = "**"
	}
	matches, err := doublestar.Glob(os.DirFS(hostWS), pattern)
	if err != nil {
		return nil, errs.NewExecutionError("list_files", "invalid glob pattern", err)
	}
	return matches, nil
}

// GetFile reads a workspace-relative file off the host bind mount.
func (r *Runtime) GetFile(ctx context.Context, path string) ([]byte, error) {
	r.mu.Lock()
	hostWS := r.hostWS
	r.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(hostWS, path))
	if err != nil {
		return nil, errs.NewNotFound("file " + path)
	}
	return data, nil
}

// VSCodeURL is not supported: this variant exposes no remote IDE server.
func (r *Runtime) VSCodeURL(ctx context.Context) (string, error) {
	return "", errs.NewNotSupported("container.vscode_url")
}

// GetTrajectory replays the full, unfiltered event history.
func (r *Runtime) GetTrajectory(ctx context.Context) ([]*event.Event, error) {
	evs, err := r.stream.GetEvents(ctx, 0, -1, &eventstream.Filter{IncludeBranches: true})
	if err != nil {
		log.Errorf("container runtime: get_trajectory failed: %v", err)
		return nil, err
	}
	return evs, nil
}
