// Package controller implements the AgentController event loop of
// spec.md §4.4: the perceive→decide→act cycle binding exactly one Agent
// to one EventStream and one Runtime. Grounded on the teacher's
// invocation control-flow shape (agent/invocation.go's state stepping
// and callback dispatch) and the qdrant vectorstore's retry idiom
// (knowledge/vectorstore/qdrant/retry.go), adapted to spec.md's own
// halting predicates and state machine.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/eventstream"
	"github.com/agentrt/agentrt/log"
	"github.com/agentrt/agentrt/runtime"
	"github.com/agentrt/agentrt/security"
	"github.com/agentrt/agentrt/state"
	"github.com/agentrt/agentrt/state/condense"
	"github.com/agentrt/agentrt/telemetry"
)

// StepResult is what Agent.Step returns: a proposed Action plus the
// usage it cost to produce it, so the controller can account both in
// the same place it dispatches the action (spec.md §4.4 step 3).
type StepResult struct {
	Action           *event.Event
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Agent is the controller's sole collaborator for deciding what to do
// next, given a view of the session so far. Defined here, at the point
// of use, so the controller never depends on any one agent
// implementation (LLM-backed, scripted, or test stub).
type Agent interface {
	Step(ctx context.Context, view []*event.Event) (StepResult, error)
}

// Config bounds one controller run (spec.md §4.3/§4.4).
type Config struct {
	MaxIterations int
	MaxBudget     float64

	// ConfirmationEnabled gates whether a risky action pauses for
	// confirmation (spec.md §4.5) or dispatches regardless.
	ConfirmationEnabled bool
	// RiskThreshold is the minimum SecurityRisk that triggers
	// confirmation when ConfirmationEnabled is set. Defaults to RiskHigh.
	RiskThreshold event.SecurityRisk

	// StepRateLimit bounds how often the controller may invoke
	// agent.Step, independent of Runtime latency. Zero means unlimited.
	StepRateLimit rate.Limit
	StepBurst     int

	// MaxRetries/BaseRetryDelay/MaxRetryDelay bound the exponential
	// backoff applied to transient Runtime failures.
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration

	// FailureWindow/FailureThreshold bound how many agent-step failures
	// within a sliding window of iterations escalate the controller to
	// the error terminal state (spec.md §4.4 "Failure semantics").
	FailureWindow    int
	FailureThreshold int

	Condenser condense.Condenser
}

func (c Config) withDefaults() Config {
	if c.RiskThreshold == "" {
		c.RiskThreshold = event.RiskHigh
	}
	if c.StepRateLimit == 0 {
		c.StepRateLimit = rate.Inf
	}
	if c.StepBurst == 0 {
		c.StepBurst = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseRetryDelay == 0 {
		c.BaseRetryDelay = 200 * time.Millisecond
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = 5 * time.Second
	}
	if c.FailureWindow == 0 {
		c.FailureWindow = 10
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	return c
}

// AgentController runs exactly one Agent against exactly one
// EventStream and one Runtime. Not safe for concurrent calls: spec.md
// §5 makes a controller single-threaded cooperative; the
// ConversationManager serializes calls per conversation by construction.
type AgentController struct {
	cfg      Config
	stream   *eventstream.EventStream
	rt       runtime.Runtime
	agent    Agent
	analyzer *security.Analyzer
	metrics  *telemetry.Metrics
	state    *state.State
	branch   string // "" for the root controller, a frame id for a delegated child
	limiter  *rate.Limiter

	mu             sync.Mutex
	recentFailures []bool // sliding window, capped to cfg.FailureWindow
}

// New constructs a root AgentController (branch ""). analyzer may be
// nil: spec.md §4.5 calls the hook "optional" — a nil analyzer means no
// confirmation gating at all. metrics may be nil to skip counters.
func New(cfg Config, stream *eventstream.EventStream, rt runtime.Runtime, ag Agent, analyzer *security.Analyzer, metrics *telemetry.Metrics, inputs map[string]string) *AgentController {
	cfg = cfg.withDefaults()
	st := state.New(stream.SessionID(), cfg.MaxIterations, cfg.MaxBudget, inputs)
	st.Condenser = cfg.Condenser
	return &AgentController{
		cfg:      cfg,
		stream:   stream,
		rt:       rt,
		agent:    ag,
		analyzer: analyzer,
		metrics:  metrics,
		state:    st,
		limiter:  rate.NewLimiter(cfg.StepRateLimit, cfg.StepBurst),
	}
}

// State returns the controller's State record. Callers must not mutate
// it directly; it is exposed read-mostly for ConversationManager
// bookkeeping and serialization.
func (c *AgentController) State() *state.State { return c.state }

// Start appends the initial user message, transitions to running, and
// drives the loop until a halting predicate holds.
func (c *AgentController) Start(ctx context.Context, initialUserMessage string) error {
	if c.state.AgentState != state.AgentStateLoading {
		return fmt.Errorf("controller: start called in state %q, want %q", c.state.AgentState, state.AgentStateLoading)
	}
	if err := c.rt.Connect(ctx); err != nil {
		c.state.SetError("runtime_unavailable", err.Error())
		return err
	}
	msg, err := event.NewObservation(event.SourceUser, event.ObservationUserMessage, map[string]any{"text": initialUserMessage}, event.WithBranch(c.branch))
	if err != nil {
		return err
	}
	if _, err := c.stream.Append(ctx, msg); err != nil {
		c.state.SetError("storage_error", err.Error())
		return err
	}
	c.state.AgentState = state.AgentStateRunning
	return c.runLoop(ctx)
}

// Pause transitions to paused and suspends the Runtime, if supported.
func (c *AgentController) Pause(ctx context.Context) error {
	if c.state.AgentState.IsTerminal() {
		return nil
	}
	if err := c.rt.Pause(ctx); err != nil {
		if _, ok := errs.AsNotSupported(err); !ok {
			return err
		}
	}
	c.state.AgentState = state.AgentStatePaused
	return nil
}

// Resume reverses Pause and drives the loop forward again.
func (c *AgentController) Resume(ctx context.Context) error {
	if c.state.AgentState != state.AgentStatePaused {
		return nil
	}
	if err := c.rt.Resume(ctx); err != nil {
		if _, ok := errs.AsNotSupported(err); !ok {
			return err
		}
	}
	c.state.AgentState = state.AgentStateRunning
	return c.runLoop(ctx)
}

// Stop transitions to the stopped terminal state, safe at any time.
func (c *AgentController) Stop(ctx context.Context) error {
	if c.state.AgentState.IsTerminal() {
		return nil
	}
	c.state.Stop("stopped_by_caller", "stop requested")
	return nil
}

// SendUserMessage appends a user-source message; if the controller was
// awaiting user input, it transitions back to running and resumes the
// loop (spec.md §4.4, and the decided Open Question that a message
// arriving during awaiting_user_confirmation is queued rather than
// rejected — appended immediately either way).
func (c *AgentController) SendUserMessage(ctx context.Context, text string) error {
	msg, err := event.NewObservation(event.SourceUser, event.ObservationUserMessage, map[string]any{"text": text}, event.WithBranch(c.branch))
	if err != nil {
		return err
	}
	if _, err := c.stream.Append(ctx, msg); err != nil {
		c.state.SetError("storage_error", err.Error())
		return err
	}
	if c.state.AgentState == state.AgentStateAwaitingUserInput {
		c.state.AgentState = state.AgentStateRunning
		return c.runLoop(ctx)
	}
	return nil
}

// Confirm resolves a pending confirmation. accept dispatches the
// pending action; reject appends a RejectedObservation in its stead.
// Either way the controller returns to running and resumes the loop.
func (c *AgentController) Confirm(ctx context.Context, actionID int64, accept bool) error {
	if c.state.AgentState != state.AgentStateAwaitingUserConfirmation {
		return errs.NewNotFound(fmt.Sprintf("pending confirmation for action %d", actionID))
	}
	action, err := c.stream.GetEvent(ctx, actionID)
	if err != nil {
		return err
	}
	if accept {
		action.ConfirmationState = event.ConfirmationConfirmed
		if c.metrics != nil {
			c.metrics.Confirmations.WithLabelValues("accept").Inc()
		}
		obs, dispatchErr := c.dispatchWithRetry(ctx, action)
		if dispatchErr != nil {
			if _, ok := errs.AsRuntimeInternalError(dispatchErr); ok {
				c.state.SetError("runtime_internal_error", dispatchErr.Error())
				return dispatchErr
			}
			built, buildErr := event.NewObservation(event.SourceEnvironment, event.ObservationError, map[string]any{
				"errorKind": errorKindFor(dispatchErr),
				"message":   dispatchErr.Error(),
			}, event.WithCause(actionID), event.WithBranch(c.branch))
			if buildErr != nil {
				return buildErr
			}
			obs = built
		}
		if _, err := c.stream.Append(ctx, obs); err != nil {
			c.state.SetError("storage_error", err.Error())
			return err
		}
		_ = c.state.AdvanceIteration()
	} else {
		action.ConfirmationState = event.ConfirmationRejected
		if c.metrics != nil {
			c.metrics.Confirmations.WithLabelValues("reject").Inc()
		}
		obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationRejected, map[string]any{
			"reason": "user rejected the pending action",
		}, event.WithCause(actionID), event.WithBranch(c.branch))
		if err != nil {
			return err
		}
		if _, err := c.stream.Append(ctx, obs); err != nil {
			c.state.SetError("storage_error", err.Error())
			return err
		}
	}
	c.state.AgentState = state.AgentStateRunning
	return c.runLoop(ctx)
}

// Close closes the controller's Runtime and returns its error; it is
// as idempotent as that Runtime's Close. It does not drain pending
// work, persist the final State, or block later calls on the
// controller.
func (c *AgentController) Close(ctx context.Context) error {
	return c.rt.Close(ctx)
}

// runLoop drives step() until it reports no further progress is
// possible this call (a halting predicate, or a terminal transition).
func (c *AgentController) runLoop(ctx context.Context) error {
	for {
		cont, err := c.step(ctx)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// step runs exactly one iteration of the procedure in spec.md §4.4. The
// returned bool reports whether the loop should continue; a non-nil
// error is reserved for conditions the caller must surface (context
// cancellation) — ordinary failures are reified as State/Observation
// transitions per the "failure-as-value" design (spec.md §9).
func (c *AgentController) step(ctx context.Context) (bool, error) {
	tracer := telemetry.Tracer("agentrt/controller")
	ctx, span := tracer.Start(ctx, "controller.step")
	defer span.End()

	if c.haltingPredicateHolds(ctx) {
		return false, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	view, err := c.buildView(ctx)
	if err != nil {
		return false, err
	}

	result, err := c.agent.Step(ctx, view)
	if err != nil {
		return c.handleAgentFailure(ctx, err)
	}
	c.recordFailure(false)

	c.state.PromptTokens += result.PromptTokens
	c.state.CompletionTokens += result.CompletionTokens
	_ = c.state.SpendBudget(result.Cost) // re-checked by haltingPredicateHolds at the top of the next step

	action := result.Action
	action.Branch = c.branch

	switch action.Kind {
	case event.ActionFinish:
		if _, err := c.stream.Append(ctx, action); err != nil {
			c.state.SetError("storage_error", err.Error())
			return false, nil
		}
		c.state.AgentState = state.AgentStateFinished
		return false, nil

	case event.ActionDelegate:
		return c.handleDelegate(ctx, action)

	case event.ActionChangeAgentState:
		return c.handleChangeAgentState(ctx, action)

	default:
		return c.handleDispatchableAction(ctx, action)
	}
}

func (c *AgentController) haltingPredicateHolds(ctx context.Context) bool {
	if c.state.AgentState.IsTerminal() {
		return true
	}
	switch c.state.AgentState {
	case state.AgentStateAwaitingUserInput, state.AgentStateAwaitingUserConfirmation, state.AgentStatePaused:
		return true
	}
	if c.state.MaxIterations > 0 && c.state.Iteration >= c.state.MaxIterations {
		c.appendStopObservation(ctx, "iterations_exceeded", fmt.Sprintf("reached max_iterations=%d", c.state.MaxIterations))
		return true
	}
	if c.state.MaxBudget > 0 && c.state.BudgetSpent >= c.state.MaxBudget {
		c.appendStopObservation(ctx, "budget_exceeded", fmt.Sprintf("reached max_budget=%.4f", c.state.MaxBudget))
		return true
	}
	return false
}

func (c *AgentController) appendStopObservation(ctx context.Context, kind, message string) {
	c.state.Stop(kind, message)
	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationAgentState, map[string]any{
		"state": string(state.AgentStateStopped),
	}, event.WithBranch(c.branch))
	if err != nil {
		return
	}
	if _, err := c.stream.Append(ctx, obs); err != nil {
		log.Warnf("controller: failed to append stop observation: %v", err)
	}
}

// buildView fetches this controller's own branch of history and runs it
// through State's configured Condenser (spec.md §4.3).
func (c *AgentController) buildView(ctx context.Context) ([]*event.Event, error) {
	history, err := c.stream.GetEvents(ctx, 0, -1, &eventstream.Filter{Branch: c.branch})
	if err != nil {
		return nil, err
	}
	return c.state.View(ctx, history), nil
}

func (c *AgentController) handleAgentFailure(ctx context.Context, stepErr error) (bool, error) {
	c.recordFailure(true)
	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationError, map[string]any{
		"errorKind": "agent_error",
		"message":   stepErr.Error(),
	}, event.WithBranch(c.branch))
	if err == nil {
		if _, appendErr := c.stream.Append(ctx, obs); appendErr != nil {
			c.state.SetError("storage_error", appendErr.Error())
			return false, nil
		}
	}
	if c.metrics != nil {
		c.metrics.ErrorsByKind.WithLabelValues("agent_error").Inc()
	}
	if c.failuresExceedThreshold() {
		c.state.SetError("agent_error", "too many agent failures in window: "+stepErr.Error())
		return false, nil
	}
	return true, nil
}

func (c *AgentController) recordFailure(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentFailures = append(c.recentFailures, failed)
	if len(c.recentFailures) > c.cfg.FailureWindow {
		c.recentFailures = c.recentFailures[len(c.recentFailures)-c.cfg.FailureWindow:]
	}
}

func (c *AgentController) failuresExceedThreshold() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, f := range c.recentFailures {
		if f {
			count++
		}
	}
	return count >= c.cfg.FailureThreshold
}

type changeAgentStatePayload struct {
	State string `json:"state"`
}

func (c *AgentController) handleChangeAgentState(ctx context.Context, action *event.Event) (bool, error) {
	var payload changeAgentStatePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return c.handleAgentFailure(ctx, fmt.Errorf("malformed change_agent_state payload: %w", err))
	}
	target := state.AgentState(payload.State)
	switch target {
	case state.AgentStatePaused, state.AgentStateAwaitingUserInput, state.AgentStateAwaitingUserConfirmation:
		// allowed self-requested transitions
	default:
		return c.handleAgentFailure(ctx, fmt.Errorf("agent requested unsupported agent state %q", payload.State))
	}
	if _, err := c.stream.Append(ctx, action); err != nil {
		c.state.SetError("storage_error", err.Error())
		return false, nil
	}
	c.state.AgentState = target
	return false, nil
}

type delegatePayload struct {
	Task          string  `json:"task"`
	MaxIterations int     `json:"maxIterations"`
	MaxBudget     float64 `json:"maxBudget"`
}

// handleDelegate implements spec.md §4.4's delegation rules using the
// decided single-stream, Branch-tagged transport (SPEC_FULL.md §4.4.1):
// the child controller shares this controller's EventStream, but every
// event it appends carries a distinct Branch id that the parent's own
// GetEvents/view calls never see.
func (c *AgentController) handleDelegate(ctx context.Context, action *event.Event) (bool, error) {
	var payload delegatePayload
	if err := action.UnmarshalPayload(&payload); err != nil {
		return c.handleAgentFailure(ctx, fmt.Errorf("malformed delegate payload: %w", err))
	}
	actionID, err := c.stream.Append(ctx, action)
	if err != nil {
		c.state.SetError("storage_error", err.Error())
		return false, nil
	}

	subMaxIter := remainingCapInt(c.state.MaxIterations-c.state.Iteration, payload.MaxIterations)
	subMaxBudget := remainingCapFloat(c.state.MaxBudget-c.state.BudgetSpent, payload.MaxBudget)
	childBranch := fmt.Sprintf("%s/delegate-%d", c.branch, actionID)

	c.state.PushDelegation(c.stream.SessionID(), payload.Task, subMaxIter, subMaxBudget, childBranch)

	child := &AgentController{
		cfg:      c.cfg,
		stream:   c.stream,
		rt:       c.rt,
		agent:    c.agent,
		analyzer: c.analyzer,
		metrics:  c.metrics,
		state:    state.New(c.stream.SessionID(), subMaxIter, subMaxBudget, map[string]string{"task": payload.Task}),
		branch:   childBranch,
		limiter:  c.limiter,
	}
	child.state.Condenser = c.state.Condenser

	summary := "delegated subtask did not finish cleanly"
	if err := child.Start(ctx, payload.Task); err != nil {
		log.Warnf("controller: delegated subtask %q failed: %v", payload.Task, err)
	} else if child.state.AgentState == state.AgentStateFinished {
		summary = fmt.Sprintf("delegated subtask %q finished after %d iteration(s)", payload.Task, child.state.Iteration)
	}

	c.state.PopDelegation()

	obs, err := event.NewObservation(event.SourceEnvironment, event.ObservationAgentDelegate, map[string]any{
		"summary": summary,
	}, event.WithCause(actionID), event.WithBranch(c.branch))
	if err != nil {
		return false, nil
	}
	if _, err := c.stream.Append(ctx, obs); err != nil {
		c.state.SetError("storage_error", err.Error())
		return false, nil
	}
	return true, nil
}

// remainingCapInt/remainingCapFloat bound a delegated subtask's
// requested iteration/budget cap above by what the parent has left
// (spec.md §4.4, "Delegation": "a sub-budget bounded above by parent's
// remaining"). requested <= 0 means "use whatever the parent has left."
func remainingCapInt(parentRemaining, requested int) int {
	if requested <= 0 || requested > parentRemaining {
		return parentRemaining
	}
	return requested
}

func remainingCapFloat(parentRemaining, requested float64) float64 {
	if requested <= 0 || requested > parentRemaining {
		return parentRemaining
	}
	return requested
}

func (c *AgentController) handleDispatchableAction(ctx context.Context, action *event.Event) (bool, error) {
	risk := event.RiskUnknown
	if c.analyzer != nil {
		risk = c.analyzer.Risk(ctx, action)
	}
	action.SecurityRisk = risk

	if c.cfg.ConfirmationEnabled && security.Severity(risk) >= security.Severity(c.cfg.RiskThreshold) {
		action.ConfirmationState = event.ConfirmationUnconfirmed
		if _, err := c.stream.Append(ctx, action); err != nil {
			c.state.SetError("storage_error", err.Error())
			return false, nil
		}
		c.state.AgentState = state.AgentStateAwaitingUserConfirmation
		return false, nil
	}

	actionID, err := c.stream.Append(ctx, action)
	if err != nil {
		c.state.SetError("storage_error", err.Error())
		return false, nil
	}
	if c.metrics != nil {
		c.metrics.ActionsDispatched.WithLabelValues(action.Kind).Inc()
	}

	obs, dispatchErr := c.dispatchWithRetry(ctx, action)
	if dispatchErr != nil {
		// Only RuntimeInternalError is fatal (spec.md §4.4, "Failure
		// semantics"). Everything else — ActionNotPermitted,
		// ConfirmationRequired surviving a defensive double-check, or
		// RuntimeUnavailable exhausting every retry — is reified as a
		// non-fatal ErrorObservation and the loop continues.
		if _, ok := errs.AsRuntimeInternalError(dispatchErr); ok {
			c.state.SetError("runtime_internal_error", dispatchErr.Error())
			return false, nil
		}
		built, buildErr := event.NewObservation(event.SourceEnvironment, event.ObservationError, map[string]any{
			"errorKind": errorKindFor(dispatchErr),
			"message":   dispatchErr.Error(),
		}, event.WithCause(actionID), event.WithBranch(c.branch))
		if buildErr != nil {
			c.state.SetError("runtime_internal_error", buildErr.Error())
			return false, nil
		}
		obs = built
	}
	obs.Branch = c.branch
	if _, err := c.stream.Append(ctx, obs); err != nil {
		c.state.SetError("storage_error", err.Error())
		return false, nil
	}
	if c.metrics != nil {
		c.metrics.ObservationsEmitted.WithLabelValues(obs.Kind).Inc()
	}
	_ = c.state.AdvanceIteration()
	return true, nil
}

func errorKindFor(err error) string {
	switch {
	case isRuntimeUnavailable(err):
		return "runtime_unavailable"
	case isActionNotPermitted(err):
		return "action_not_permitted"
	case isConfirmationRequired(err):
		return "confirmation_required"
	default:
		return "execution_error"
	}
}

func isRuntimeUnavailable(err error) bool { _, ok := errs.AsRuntimeUnavailable(err); return ok }
func isActionNotPermitted(err error) bool { _, ok := errs.AsActionNotPermitted(err); return ok }
func isConfirmationRequired(err error) bool {
	_, ok := errs.AsConfirmationRequired(err)
	return ok
}

// dispatchWithRetry calls Runtime.RunAction, retrying RuntimeUnavailable
// with exponential backoff up to cfg.MaxRetries before giving up. Every
// other error (including RuntimeInternalError) is returned immediately:
// only RuntimeUnavailable is a transient condition per spec.md §4.2.
func (c *AgentController) dispatchWithRetry(ctx context.Context, action *event.Event) (*event.Event, error) {
	delay := c.cfg.BaseRetryDelay
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		obs, err := c.rt.RunAction(ctx, action)
		if err == nil {
			return obs, nil
		}
		if _, ok := errs.AsRuntimeUnavailable(err); !ok {
			return nil, err
		}
		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.cfg.MaxRetryDelay {
			delay = c.cfg.MaxRetryDelay
		}
	}
	return nil, lastErr
}
