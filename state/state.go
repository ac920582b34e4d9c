// Package state implements the State record of spec.md §4.3: the
// mutable, controller-owned snapshot of one agent's progress through a
// session, plus its two derived views (the condensed prompt window and
// point-in-time metrics) and its resumable serialization. Grounded on
// the shape of the teacher's session package (a plain record owned by
// exactly one caller, no internal locking — the controller is already
// single-threaded per spec.md §5).
package state

import (
	"context"

	"github.com/agentrt/agentrt/errs"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/state/condense"
)

// AgentState is the controller's terminal/non-terminal status, per the
// state machine in spec.md §4.4.
type AgentState string

const (
	AgentStateLoading                  AgentState = "loading"
	AgentStateRunning                  AgentState = "running"
	AgentStatePaused                   AgentState = "paused"
	AgentStateAwaitingUserInput        AgentState = "awaiting_user_input"
	AgentStateAwaitingUserConfirmation AgentState = "awaiting_user_confirmation"
	AgentStateFinished                 AgentState = "finished"
	AgentStateRejected                 AgentState = "rejected"
	AgentStateError                    AgentState = "error"
	AgentStateStopped                  AgentState = "stopped"
)

// IsTerminal reports whether s admits no further transitions.
func (s AgentState) IsTerminal() bool {
	switch s {
	case AgentStateFinished, AgentStateRejected, AgentStateError, AgentStateStopped:
		return true
	default:
		return false
	}
}

// LastError is State's structured error record (kind + message), kept
// distinct from the Go error interface so it survives serialization.
type LastError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// DelegationFrame is one entry of the delegation stack: a reference to
// the parent controller's session plus the task spec handed to the
// child (SPEC_FULL.md §4.4.1's single-stream, Branch-tagged delegation).
type DelegationFrame struct {
	ParentSessionID string  `json:"parentSessionId"`
	Branch          string  `json:"branch"`
	Task            string  `json:"task"`
	MaxIterations   int     `json:"maxIterations"`
	MaxBudget       float64 `json:"maxBudget"`
}

// State is the mutable record one AgentController owns exclusively.
// It carries no mutex: spec.md §5 makes each controller single-threaded
// cooperative, so only that controller's goroutine ever touches its own
// State.
type State struct {
	SessionID string `json:"sessionId"`

	Iteration     int `json:"iteration"`
	MaxIterations int `json:"maxIterations"`

	BudgetSpent float64 `json:"budgetSpent"`
	MaxBudget   float64 `json:"maxBudget"`

	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`

	AgentState AgentState `json:"agentState"`
	LastError  *LastError `json:"lastError,omitempty"`

	// StartID advances as the Condenser collapses older segments; the
	// view always begins here, never duplicating the stream.
	StartID int64 `json:"startId"`

	DelegationStack []DelegationFrame `json:"delegationStack,omitempty"`
	Inputs          map[string]string `json:"inputs,omitempty"`

	Condenser condense.Condenser `json:"-"`
}

// New returns a freshly loaded State in AgentStateLoading.
func New(sessionID string, maxIterations int, maxBudget float64, inputs map[string]string) *State {
	return &State{
		SessionID:     sessionID,
		MaxIterations: maxIterations,
		MaxBudget:     maxBudget,
		AgentState:    AgentStateLoading,
		Inputs:        inputs,
		Condenser:     condense.NewKeepLastN(0),
	}
}

// View returns history[StartID:], run through the configured Condenser.
// Callers fetch history via eventstream.EventStream.GetEvents — State
// itself stays free of that import to avoid a dependency cycle.
// Condensation never mutates the stream — only the slice returned here.
func (s *State) View(ctx context.Context, history []*event.Event) []*event.Event {
	var windowed []*event.Event
	for _, e := range history {
		if e.ID >= s.StartID {
			windowed = append(windowed, e)
		}
	}
	if s.Condenser == nil {
		return windowed
	}
	return s.Condenser.Condense(ctx, windowed)
}

// Metrics is the point-in-time accounting snapshot (spec.md §4.3).
type Metrics struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	Cost             float64 `json:"cost"`
	Iteration        int     `json:"iteration"`
}

// MetricsSnapshot returns the current Metrics view.
func (s *State) MetricsSnapshot() Metrics {
	return Metrics{
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		Cost:             s.BudgetSpent,
		Iteration:        s.Iteration,
	}
}

// AdvanceIteration increments Iteration and returns IterationsExceeded
// once the ceiling is reached — never decrements, per the State
// invariant in spec.md §3.
func (s *State) AdvanceIteration() error {
	s.Iteration++
	if s.Iteration >= s.MaxIterations {
		return errs.NewIterationsExceeded(s.Iteration, s.MaxIterations)
	}
	return nil
}

// SpendBudget adds cost to BudgetSpent and returns BudgetExceeded once
// MaxBudget is reached.
func (s *State) SpendBudget(cost float64) error {
	s.BudgetSpent += cost
	if s.MaxBudget > 0 && s.BudgetSpent >= s.MaxBudget {
		return errs.NewBudgetExceeded(s.BudgetSpent, s.MaxBudget)
	}
	return nil
}

// SetError records a structured failure and transitions AgentState to
// error, enforcing the State invariant "a non-empty last_error implies
// agent_state ∈ {error, stopped}".
func (s *State) SetError(kind, message string) {
	s.LastError = &LastError{Kind: kind, Message: message}
	s.AgentState = AgentStateError
}

// Stop transitions to stopped with a structured reason, without
// treating the halt as an error (spec.md §4.4: exceeding iteration or
// budget caps is not itself an error).
func (s *State) Stop(kind, message string) {
	s.LastError = &LastError{Kind: kind, Message: message}
	s.AgentState = AgentStateStopped
}

// PushDelegation records a new delegation frame and returns the branch
// tag the child controller should stamp on every event it appends.
func (s *State) PushDelegation(parentSessionID, task string, maxIterations int, maxBudget float64, branch string) {
	s.DelegationStack = append(s.DelegationStack, DelegationFrame{
		ParentSessionID: parentSessionID,
		Branch:          branch,
		Task:            task,
		MaxIterations:   maxIterations,
		MaxBudget:       maxBudget,
	})
}

// PopDelegation removes the most recent delegation frame, if any.
func (s *State) PopDelegation() {
	if len(s.DelegationStack) == 0 {
		return
	}
	s.DelegationStack = s.DelegationStack[:len(s.DelegationStack)-1]
}

// Snapshot is State's resumable serialization (spec.md §4.3): session
// ID, iteration, budget, agent_state, last_error, inputs, delegation
// stack by parent reference, and the condenser's start_id. The event
// history itself is recovered from the EventStream, never duplicated.
type Snapshot struct {
	SessionID       string            `json:"sessionId"`
	Iteration       int               `json:"iteration"`
	MaxIterations   int               `json:"maxIterations"`
	BudgetSpent     float64           `json:"budgetSpent"`
	MaxBudget       float64           `json:"maxBudget"`
	AgentState      AgentState        `json:"agentState"`
	LastError       *LastError        `json:"lastError,omitempty"`
	StartID         int64             `json:"startId"`
	DelegationStack []DelegationFrame `json:"delegationStack,omitempty"`
	Inputs          map[string]string `json:"inputs,omitempty"`
}

// ToSnapshot captures the resumable fields.
func (s *State) ToSnapshot() Snapshot {
	return Snapshot{
		SessionID:       s.SessionID,
		Iteration:       s.Iteration,
		MaxIterations:   s.MaxIterations,
		BudgetSpent:     s.BudgetSpent,
		MaxBudget:       s.MaxBudget,
		AgentState:      s.AgentState,
		LastError:       s.LastError,
		StartID:         s.StartID,
		DelegationStack: s.DelegationStack,
		Inputs:          s.Inputs,
	}
}

// FromSnapshot rebuilds a State from a Snapshot. The caller must
// re-attach a Condenser (not serialized) and recover history from the
// EventStream separately.
func FromSnapshot(snap Snapshot, condenser condense.Condenser) *State {
	if condenser == nil {
		condenser = condense.NewKeepLastN(0)
	}
	return &State{
		SessionID:       snap.SessionID,
		Iteration:       snap.Iteration,
		MaxIterations:   snap.MaxIterations,
		BudgetSpent:     snap.BudgetSpent,
		MaxBudget:       snap.MaxBudget,
		AgentState:      snap.AgentState,
		LastError:       snap.LastError,
		StartID:         snap.StartID,
		DelegationStack: snap.DelegationStack,
		Inputs:          snap.Inputs,
		Condenser:       condenser,
	}
}
