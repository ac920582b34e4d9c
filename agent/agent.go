// Package agent implements spec.md §2's collaborator G: "given a State,
// returns the next Action (or a finish sentinel), stateless between
// calls except for per-session caches it owns." Structurally satisfies
// controller.Agent (Step(ctx, view) (controller.StepResult, error))
// without controller importing this package — the controller depends
// only on its own locally-defined interface (spec.md §9, "accept
// interfaces at the point of use").
//
// Grounded on the teacher's agent package in spirit only: the teacher's
// Agent interface (Run/Tools/Info/SubAgents) models a stateful,
// multi-turn chat orchestrator with its own Invocation/session machinery
// — a fundamentally different contract from this spec's single
// view-in/Action-out step function, so none of that type survives here
// unchanged. What is adapted is the teacher's before/after Callbacks
// idiom (agent/callbacks.go in the teacher), generalized from
// "before/after agent run" to "before/after step".
package agent

import (
	"github.com/agentrt/agentrt/event"
)

// Finish builds the ActionFinish sentinel an Agent returns once it
// considers the task complete (spec.md §2, "or a finish sentinel").
func Finish(summary string) (*event.Event, error) {
	return event.NewAction(event.SourceAgent, event.ActionFinish, map[string]any{"summary": summary})
}
