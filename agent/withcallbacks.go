package agent

import (
	"context"

	"github.com/agentrt/agentrt/controller"
	"github.com/agentrt/agentrt/event"
)

// WithCallbacks wraps inner so every Step first runs cb's before-hooks
// (any of which may short-circuit the call entirely) and then its
// after-hooks (which may replace the resulting Action or error).
func WithCallbacks(inner controller.Agent, cb *Callbacks) controller.Agent {
	return &callbackAgent{inner: inner, cb: cb}
}

type callbackAgent struct {
	inner controller.Agent
	cb    *Callbacks
}

func (a *callbackAgent) Step(ctx context.Context, view []*event.Event) (controller.StepResult, error) {
	if short, err := a.cb.runBefore(ctx, view); err != nil || short != nil {
		if err != nil {
			return controller.StepResult{}, err
		}
		return controller.StepResult{Action: short}, nil
	}

	result, stepErr := a.inner.Step(ctx, view)
	action, err := a.cb.runAfter(ctx, view, result.Action, stepErr)
	result.Action = action
	return result, err
}
