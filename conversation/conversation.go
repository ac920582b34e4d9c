// Package conversation implements the ConversationManager of spec.md
// §4.6: the process-wide owner of the conversation_id → (EventStream,
// AgentController, Runtime) mapping. Every operation below is a thin,
// mutex-guarded delegation onto the named conversation's controller —
// the manager's own job is lifecycle (create/list/close), concurrency
// limits, and the idle-pause/retention-close sweep. Grounded on the
// explicit-registry idiom already used by runtime.Registry and
// llm.Registry (map + mutex, no reflection), and on the HyphaGroup-oubliette
// pack repo's use of robfig/cron/v3 for scheduled sweeps.
package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentrt/agentrt/agent"
	"github.com/agentrt/agentrt/config"
	"github.com/agentrt/agentrt/controller"
	"github.com/agentrt/agentrt/conversation/metadata"
	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/eventstream/storeselect"
	"github.com/agentrt/agentrt/internal/idgen"
	"github.com/agentrt/agentrt/llm"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/security"
	"github.com/agentrt/agentrt/state"
	"github.com/agentrt/agentrt/telemetry"
)

// Limits bounds how many conversations the manager admits (spec.md
// §4.6, "configurable concurrency/per-user/resource limits").
type Limits struct {
	MaxConversations int // 0 means unlimited
	MaxPerUser       int // 0 means unlimited
}

// ManagerConfig wires the collaborators every conversation shares.
type ManagerConfig struct {
	WorkspaceRoot   string // parent directory for each conversation's local FileStore
	Runtimes        *runtime.Registry
	LLMs            *llm.Registry
	Analyzer        *security.Analyzer
	Metrics         *telemetry.Metrics
	Limits          Limits
	IdleTimeout     time.Duration // 0 disables idle auto-pause
	RetentionPeriod time.Duration // 0 disables terminal auto-close
	SweepSchedule   string        // robfig/cron expression; defaults to "@every 1m"

	// MetadataStore, if set, receives a best-effort Upsert on every
	// lifecycle transition (create, touch, close, sweep) — a durable
	// side record independent of the live EventStream (spec.md §4.6,
	// "persist session metadata"). A write failure here is logged, never
	// fatal to the conversation operation that triggered it.
	MetadataStore metadata.Store
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.SweepSchedule == "" {
		c.SweepSchedule = "@every 1m"
	}
	return c
}

// entry is one live conversation. Access is guarded by Manager.mu.
type entry struct {
	id             string
	userID         string
	createdAt      time.Time
	lastActivityAt time.Time
	stream         *eventstream.EventStream
	rt             runtime.Runtime
	ctrl           *controller.AgentController
}

// Summary is the read-only projection List/Get return to callers —
// never the live entry, so nothing outside this package can mutate a
// conversation's controller directly.
type Summary struct {
	ID         string
	UserID     string
	AgentState state.AgentState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilter narrows List's result set. Zero value matches everything.
type ListFilter struct {
	UserID     string
	AgentState state.AgentState
}

// Manager is the process-wide ConversationManager singleton.
type Manager struct {
	cfg ManagerConfig

	mu        sync.RWMutex
	entries   map[string]*entry
	perUser   map[string]int
	scheduler *cron.Cron
}

// NewManager constructs a Manager and starts its sweep scheduler.
func NewManager(cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:       cfg,
		entries:   make(map[string]*entry),
		perUser:   make(map[string]int),
		scheduler: cron.New(),
	}
	if _, err := m.scheduler.AddFunc(cfg.SweepSchedule, m.sweep); err != nil {
		log.Errorf("conversation: invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
	}
	m.scheduler.Start()
	return m
}

// Shutdown stops the sweep scheduler. It does not close live
// conversations — callers wanting a clean drain should Close each one
// first (e.g. via List + Close).
func (m *Manager) Shutdown() {
	ctx := m.scheduler.Stop()
	<-ctx.Done()
}

// Create allocates a fresh EventStream, Runtime, and AgentController
// for one conversation, appends initialMessage, and drives the loop
// until the first halting predicate (spec.md §4.6's "create" op). The
// agent is selected by cfg.Core.DefaultAgent: "scripted" (or empty)
// yields a deterministic Scripted stub that runs `true` once and then
// finishes; any other tag is looked up in the LLM registry as a
// provider tag.
func (m *Manager) Create(ctx context.Context, userID string, cfg config.Config, inputs map[string]string, initialMessage string) (string, error) {
	if err := m.reserveSlot(userID); err != nil {
		return "", err
	}

	id := idgen.New()
	rollback := func() { m.releaseSlot(userID) }

	store, err := storeselect.Open(cfg.Core.FileStore, storePath(m.cfg.WorkspaceRoot, cfg.Core.FileStorePath, cfg.Core.FileStore, id))
	if err != nil {
		rollback()
		return "", err
	}
	stream, err := eventstream.New(ctx, id, store)
	if err != nil {
		rollback()
		return "", err
	}

	rtCfg := runtime.Config{
		BaseImage:      cfg.Sandbox.BaseContainerImage,
		RuntimeImage:   cfg.Sandbox.RuntimeContainerImage,
		DefaultTimeout: time.Duration(cfg.Sandbox.Timeout) * time.Second,
		ExtraDeps:      cfg.Sandbox.RuntimeExtraDeps,
		StartupEnvVars: cfg.Sandbox.RuntimeStartupEnvVars,
		Platform:       cfg.Sandbox.Platform,
	}
	rt, err := m.cfg.Runtimes.Create(cfg.Core.Runtime, rtCfg, id, stream)
	if err != nil {
		stream.Close()
		rollback()
		return "", err
	}

	ag, err := m.buildAgent(cfg)
	if err != nil {
		stream.Close()
		rollback()
		return "", err
	}

	ctrlCfg := controller.Config{
		MaxIterations:       cfg.Core.MaxIterations,
		MaxBudget:           cfg.Core.MaxBudgetPerTask,
		ConfirmationEnabled: cfg.Security.ConfirmationMode,
	}
	ctrl := controller.New(ctrlCfg, stream, rt, ag, m.cfg.Analyzer, m.cfg.Metrics, inputs)

	now := time.Now()
	e := &entry{id: id, userID: userID, createdAt: now, lastActivityAt: now, stream: stream, rt: rt, ctrl: ctrl}
	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	if err := ctrl.Start(ctx, initialMessage); err != nil {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()
		rollback()
		return "", err
	}
	m.persist(e)
	return id, nil
}

// storePath resolves the locator storeselect.Open needs for tag:
// per-conversation directory/file for the embedded backends (local,
// sqlite, bbolt — each conversation gets its own root so one store
// instance never outlives the conversation it belongs to), or the
// raw configured path for the shared, networked ones (redis, cos),
// which address one external resource regardless of how many
// conversations use it.
func storePath(workspaceRoot, fileStorePath, tag, id string) string {
	root := workspaceRoot
	if fileStorePath != "" {
		root = fileStorePath
	}
	switch tag {
	case storeselect.Redis, storeselect.COS:
		return fileStorePath
	case storeselect.SQLite, storeselect.BBolt:
		return filepath.Join(root, id+".db")
	default:
		return filepath.Join(root, id)
	}
}

func (m *Manager) buildAgent(cfg config.Config) (controller.Agent, error) {
	tag := cfg.Core.DefaultAgent
	if tag == "" || tag == "scripted" {
		return agent.ShellEcho("true", "no llm provider configured")
	}
	client, err := m.cfg.LLMs.Create(tag, llm.Config{
		Provider:     tag,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return agent.NewLLM(client, cfg.LLM.Model, ""), nil
}

func (m *Manager) reserveSlot(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Limits.MaxConversations > 0 && len(m.entries) >= m.cfg.Limits.MaxConversations {
		return errs.NewConversationLimitReached(m.cfg.Limits.MaxConversations)
	}
	if m.cfg.Limits.MaxPerUser > 0 && m.perUser[userID] >= m.cfg.Limits.MaxPerUser {
		return errs.NewConversationLimitReached(m.cfg.Limits.MaxPerUser)
	}
	m.perUser[userID]++
	return nil
}

func (m *Manager) releaseSlot(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perUser[userID] > 0 {
		m.perUser[userID]--
	}
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, errs.NewNotFound(fmt.Sprintf("conversation %s", id))
	}
	return e, nil
}

func (m *Manager) touch(e *entry) {
	m.mu.Lock()
	e.lastActivityAt = time.Now()
	m.mu.Unlock()
	m.persist(e)
}

// persist best-effort upserts e's current snapshot into MetadataStore,
// if configured. Failures are logged, never returned: the durable
// record is a convenience for listing/auditing across process
// restarts, not a dependency of the live controller loop.
func (m *Manager) persist(e *entry) {
	if m.cfg.MetadataStore == nil {
		return
	}
	m.mu.RLock()
	rec := metadata.Record{
		ConversationID: e.id,
		UserID:         e.userID,
		AgentState:     e.ctrl.State().AgentState,
		CreatedAt:      e.createdAt,
		UpdatedAt:      e.lastActivityAt,
	}
	m.mu.RUnlock()
	if err := m.cfg.MetadataStore.Upsert(context.Background(), rec); err != nil {
		log.Errorf("conversation: persist metadata for %s: %v", e.id, err)
	}
}

// Get returns a point-in-time Summary for one conversation.
func (m *Manager) Get(id string) (Summary, error) {
	e, err := m.get(id)
	if err != nil {
		return Summary{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summaryLocked(e), nil
}

func (m *Manager) summaryLocked(e *entry) Summary {
	return Summary{
		ID:         e.id,
		UserID:     e.userID,
		AgentState: e.ctrl.State().AgentState,
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.lastActivityAt,
	}
}

// List returns a Summary for every conversation matching filter.
func (m *Manager) List(filter ListFilter) []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.entries))
	for _, e := range m.entries {
		if filter.UserID != "" && filter.UserID != e.userID {
			continue
		}
		s := m.summaryLocked(e)
		if filter.AgentState != "" && filter.AgentState != s.AgentState {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Events delegates to the conversation's EventStream, per spec.md
// §4.6's "read-only auxiliary" surface (used by frontdoor's history
// and long-poll endpoints).
func (m *Manager) Events(ctx context.Context, id string, startID, endID int64, filter *eventstream.Filter) ([]*event.Event, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return e.stream.GetEvents(ctx, startID, endID, filter)
}

// SendMessage appends a user message and resumes the loop if the
// conversation was awaiting one.
func (m *Manager) SendMessage(ctx context.Context, id, text string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(e)
	return e.ctrl.SendUserMessage(ctx, text)
}

// Confirm resolves a pending confirmation (spec.md §4.5).
func (m *Manager) Confirm(ctx context.Context, id string, actionID int64, accept bool) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(e)
	return e.ctrl.Confirm(ctx, actionID, accept)
}

// Pause suspends the conversation's controller and Runtime.
func (m *Manager) Pause(ctx context.Context, id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(e)
	return e.ctrl.Pause(ctx)
}

// Resume reverses Pause.
func (m *Manager) Resume(ctx context.Context, id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(e)
	return e.ctrl.Resume(ctx)
}

// Stop transitions the conversation to the stopped terminal state.
func (m *Manager) Stop(ctx context.Context, id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	m.touch(e)
	return e.ctrl.Stop(ctx)
}

// Close releases the conversation's Runtime and EventStream and evicts
// it from the manager. Safe to call more than once.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	e.lastActivityAt = time.Now()
	delete(m.entries, id)
	m.mu.Unlock()

	m.persist(e)
	m.releaseSlot(e.userID)
	closeErr := e.ctrl.Close(ctx)
	if err := e.stream.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// AttachSubscriber registers cb for every event appended to the
// conversation's stream from startID onward (spec.md §4.6's
// "attach_subscriber", backing frontdoor's SSE/gRPC-stream endpoints).
func (m *Manager) AttachSubscriber(ctx context.Context, id, name string, startID int64, cb eventstream.Callback) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	return e.stream.Subscribe(ctx, name, startID, cb)
}

// DetachSubscriber removes a previously attached subscriber, leaving its
// persisted cursor intact (eventstream.EventStream.Unsubscribe's
// contract) so a later AttachSubscriber with the same name resumes.
func (m *Manager) DetachSubscriber(id, name string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.stream.Unsubscribe(name)
	return nil
}

// sweep runs on the cron schedule: it pauses conversations idle past
// IdleTimeout and closes (and evicts) terminal conversations past
// RetentionPeriod. A zero duration disables the corresponding check.
func (m *Manager) sweep() {
	now := time.Now()

	var toPause, toClose []string
	m.mu.RLock()
	for id, e := range m.entries {
		st := e.ctrl.State().AgentState
		if st.IsTerminal() {
			if m.cfg.RetentionPeriod > 0 && now.Sub(e.lastActivityAt) > m.cfg.RetentionPeriod {
				toClose = append(toClose, id)
			}
			continue
		}
		if m.cfg.IdleTimeout > 0 && st == state.AgentStateRunning && now.Sub(e.lastActivityAt) > m.cfg.IdleTimeout {
			toPause = append(toPause, id)
		}
	}
	m.mu.RUnlock()

	ctx := context.Background()
	for _, id := range toPause {
		if err := m.Pause(ctx, id); err != nil {
			log.Errorf("conversation: sweep pause %s: %v", id, err)
		}
	}
	for _, id := range toClose {
		if err := m.Close(ctx, id); err != nil {
			log.Errorf("conversation: sweep close %s: %v", id, err)
		}
	}
}
