package agent

import (
	"context"
	"fmt"

	"github.com/agentrt/agentrt/controller"
	"github.com/agentrt/agentrt/event"
)

// Step is one canned response a Scripted agent returns in order,
// independent of the view it is given — this is the stub shape spec.md
// §8 scenarios S1/S2 describe ("a stub that on first call emits X, then
// on second call emits Y").
type Step struct {
	Action *event.Event
	Cost   float64
}

// Scripted is a deterministic, view-independent Agent: it replays a
// fixed sequence of Actions, repeating the final one once exhausted.
// Used for scenario tests (S1 shell-echo, S2 iteration-cap) and as a
// demo agent for cmd/agentctl dry runs.
type Scripted struct {
	steps []Step
	n     int
}

// NewScripted returns a Scripted agent that replays steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Step implements controller.Agent.
func (s *Scripted) Step(ctx context.Context, view []*event.Event) (controller.StepResult, error) {
	if len(s.steps) == 0 {
		return controller.StepResult{}, fmt.Errorf("agent: scripted agent has no steps configured")
	}
	i := s.n
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.n++
	step := s.steps[i]
	return controller.StepResult{Action: step.Action, Cost: step.Cost}, nil
}

// ShellEcho returns the S1-style stub: run_command(cmd) once, then
// finish with summary on every subsequent call.
func ShellEcho(cmd, summary string) (*Scripted, error) {
	runAction, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": cmd})
	if err != nil {
		return nil, err
	}
	finishAction, err := Finish(summary)
	if err != nil {
		return nil, err
	}
	return NewScripted(Step{Action: runAction}, Step{Action: finishAction}), nil
}

// RepeatCommand returns the S2-style stub: the same run_command action
// forever, exercising the controller's iteration-cap halting predicate
// rather than a natural finish.
func RepeatCommand(cmd string) (*Scripted, error) {
	runAction, err := event.NewAction(event.SourceAgent, event.ActionRunCommand, map[string]any{"command": cmd})
	if err != nil {
		return nil, err
	}
	return NewScripted(Step{Action: runAction}), nil
}
