// Package runtime defines the abstract contract by which an Action is
// dispatched to a sandboxed execution environment and an Observation is
// returned, plus the explicit, process-scoped registry of pluggable
// implementations (spec.md §9: "Runtime as an open hierarchy... model as
// a capability interface with a registry keyed by the runtime config
// tag. No reflection; registrations are explicit at startup.").
package runtime

import (
	"context"
	"time"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
)

// Runtime converts one Action into one Observation inside an isolated
// environment and manages that environment's lifecycle (spec.md §4.2).
// A Runtime is not required to be concurrent-safe across actions — the
// controller serializes calls per instance (spec.md §5).
type Runtime interface {
	// Connect is idempotent; blocks until the sandbox is ready or fails
	// with RuntimeUnavailable.
	Connect(ctx context.Context) error
	// Close releases all resources. Idempotent. Must not lose
	// observations already published to the stream.
	Close(ctx context.Context) error
	// Pause suspends the sandbox. Returns NotSupported if the variant
	// cannot suspend.
	Pause(ctx context.Context) error
	// Resume reverses Pause. Returns NotSupported if the variant cannot.
	Resume(ctx context.Context) error

	// RunAction executes exactly one action, per the dispatch rules in
	// spec.md §4.2 (allowlist check, confirmation check, execute,
	// failure-as-value unless internal).
	RunAction(ctx context.Context, action *event.Event) (*event.Event, error)

	// ListFiles, GetFile, VSCodeURL, and GetTrajectory are read-only
	// auxiliary operations; they never append to the EventStream.
	ListFiles(ctx context.Context, path string) ([]string, error)
	GetFile(ctx context.Context, path string) ([]byte, error)
	VSCodeURL(ctx context.Context) (string, error)
	GetTrajectory(ctx context.Context) ([]*event.Event, error)
}

// Volume is one host-to-sandbox mount entry ("host:guest[:mode]").
type Volume struct {
	HostPath  string
	GuestPath string
	Mode      string // "rw" (default) or "ro"
}

// Config carries the "sandbox" configuration section of spec.md §6,
// shared by every Runtime variant.
type Config struct {
	// RuntimeImage is a prebuilt runtime image tag; when set, BaseImage
	// and the build policy are skipped entirely.
	RuntimeImage string
	// BaseImage, when RuntimeImage is empty, is the base to build the
	// layered image from per the deterministic tag policy in
	// runtime/imagetag.
	BaseImage string
	// Version is the "openhands_version" component of the tag policy.
	Version string
	// LockHash and SourceHash are the remaining tag-policy components.
	LockHash, SourceHash string

	DefaultTimeout time.Duration
	Volumes        []Volume
	ExtraDeps      []string
	StartupEnvVars map[string]string
	Platform       string

	// AllowedActionKinds is the allowlist run_action checks first. A nil
	// slice means "allow every registered event.Action* kind".
	AllowedActionKinds []string
}

// Allows reports whether kind passes the configured allowlist.
func (c Config) Allows(kind string) bool {
	if c.AllowedActionKinds == nil {
		return true
	}
	for _, k := range c.AllowedActionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Factory constructs a Runtime. Synchronous; must not block on
// readiness — that is Connect's job (spec.md §4.2, "create... does not
// guarantee readiness").
type Factory func(cfg Config, sessionID string, stream *eventstream.EventStream) (Runtime, error)

// Registry is an explicit, process-scoped map from a config tag to the
// Factory that builds that Runtime variant. Built once at
// ConversationManager.init, per spec.md §9.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds tag → factory. Re-registering a tag replaces it.
func (r *Registry) Register(tag string, factory Factory) {
	r.factories[tag] = factory
}

// Create builds a Runtime for the given config tag.
func (r *Registry) Create(tag string, cfg Config, sessionID string, stream *eventstream.EventStream) (Runtime, error) {
	factory, ok := r.factories[tag]
	if !ok {
		return nil, errs.NewConfigurationError("no runtime registered for tag "+tag, nil)
	}
	return factory(cfg, sessionID, stream)
}

// Tags returns the currently registered runtime tags.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	return tags
}
