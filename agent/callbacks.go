package agent

import (
	"context"

	"github.com/agentrt/agentrt/event"
)

// BeforeStepCallback runs before an Agent decides its next Action. If it
// returns a non-nil Action, that Action is used in place of calling the
// underlying agent at all (spec.md-style short-circuit, mirroring the
// teacher's BeforeAgentCallback "customResponse" convention).
type BeforeStepCallback func(ctx context.Context, view []*event.Event) (*event.Event, error)

// AfterStepCallback runs after an Agent proposes an Action (or fails to).
// Returning a non-nil Action replaces the one that will be dispatched;
// returning a non-nil error replaces stepErr.
type AfterStepCallback func(ctx context.Context, view []*event.Event, action *event.Event, stepErr error) (*event.Event, error)

// Callbacks holds ordered before/after hooks wrapped around one Agent's
// Step, adapted from the teacher's agent.Callbacks (agent/callbacks.go)
// and retargeted from agent-run granularity to step granularity. Before
// hooks run in order and the first non-nil Action or error
// short-circuits; After hooks all run in order, each non-nil
// replacement becoming the Action the later hooks see, and the first
// error stops the chain.
type Callbacks struct {
	Before []BeforeStepCallback
	After   []AfterStepCallback
}

// NewCallbacks returns an empty Callbacks.
func NewCallbacks() *Callbacks { return &Callbacks{} }

// RegisterBefore appends a before-step callback.
func (c *Callbacks) RegisterBefore(cb BeforeStepCallback) {
	c.Before = append(c.Before, cb)
}

// RegisterAfter appends an after-step callback.
func (c *Callbacks) RegisterAfter(cb AfterStepCallback) {
	c.After = append(c.After, cb)
}

func (c *Callbacks) runBefore(ctx context.Context, view []*event.Event) (*event.Event, error) {
	for _, cb := range c.Before {
		action, err := cb(ctx, view)
		if err != nil {
			return nil, err
		}
		if action != nil {
			return action, nil
		}
	}
	return nil, nil
}

func (c *Callbacks) runAfter(ctx context.Context, view []*event.Event, action *event.Event, stepErr error) (*event.Event, error) {
	for _, cb := range c.After {
		replacement, err := cb(ctx, view, action, stepErr)
		if err != nil {
			return action, err
		}
		if replacement != nil {
			action = replacement
		}
	}
	return action, stepErr
}
