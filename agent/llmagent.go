package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrt/agentrt/controller"
	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/llm"
)

// LLM is the production Agent: it renders the controller's view as a
// chat history, asks an llm.Client for a completion, and decodes the
// result into the next Action. Stateless between calls except for the
// SystemPrompt it owns (spec.md §2, "stateless... except for per-session
// caches it owns").
type LLM struct {
	Client       llm.Client
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Tools        []llm.ToolDefinition
}

// NewLLM returns an LLM agent backed by client.
func NewLLM(client llm.Client, model, systemPrompt string) *LLM {
	return &LLM{Client: client, Model: model, SystemPrompt: systemPrompt}
}

// Step implements controller.Agent.
func (a *LLM) Step(ctx context.Context, view []*event.Event) (controller.StepResult, error) {
	req := llm.Request{
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		Tools:       a.Tools,
	}
	if a.SystemPrompt != "" {
		req.Messages = append(req.Messages, llm.Message{Role: "system", Content: a.SystemPrompt})
	}
	req.Messages = append(req.Messages, renderView(view)...)

	resp, err := a.Client.Complete(ctx, req)
	if err != nil {
		return controller.StepResult{}, fmt.Errorf("llm agent: complete: %w", err)
	}

	action, err := decodeAction(resp)
	if err != nil {
		return controller.StepResult{}, fmt.Errorf("llm agent: decode action: %w", err)
	}
	return controller.StepResult{
		Action:           action,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             resp.Cost,
	}, nil
}

// renderView flattens the controller's event view into a chat history:
// user messages stay "user", everything the agent itself produced
// becomes "assistant", and environment observations are folded into
// "user" turns describing what happened (the model has no native
// concept of a third-party tool-result role in this simplified
// rendering — richer providers could use their own tool-result message
// type instead, a documented extension point).
func renderView(view []*event.Event) []llm.Message {
	out := make([]llm.Message, 0, len(view))
	for _, ev := range view {
		switch {
		case ev.Kind == "condensed":
			out = append(out, llm.Message{Role: "user", Content: "[summary of earlier activity] " + describePayload(ev)})
		case ev.Source == event.SourceAgent:
			out = append(out, llm.Message{Role: "assistant", Content: describeEvent(ev)})
		default:
			out = append(out, llm.Message{Role: "user", Content: describeEvent(ev)})
		}
	}
	return out
}

func describeEvent(ev *event.Event) string {
	return fmt.Sprintf("[%s:%s] %s", ev.Variant, ev.Kind, describePayload(ev))
}

func describePayload(ev *event.Event) string {
	if len(ev.Payload) == 0 {
		return ""
	}
	return string(ev.Payload)
}

// decodedAction is the JSON shape an LLM is instructed (via SystemPrompt)
// to emit when it is not using native tool-calling: {"kind": "...",
// "payload": {...}}. "finish" is handled specially via Finish's schema.
type decodedAction struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func decodeAction(resp llm.Response) (*event.Event, error) {
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		if call.Name == event.ActionFinish {
			return finishFromArgs(call.Arguments)
		}
		return event.NewAction(event.SourceAgent, call.Name, call.Arguments)
	}

	content := strings.TrimSpace(resp.Message.Content)
	var decoded decodedAction
	if err := json.Unmarshal([]byte(content), &decoded); err == nil && decoded.Kind != "" {
		if decoded.Kind == event.ActionFinish {
			return finishFromArgs(decoded.Payload)
		}
		return event.NewAction(event.SourceAgent, decoded.Kind, decoded.Payload)
	}

	// Not a structured action: treat the raw text as a message action
	// rather than failing the step outright.
	return event.NewAction(event.SourceAgent, event.ActionMessage, map[string]any{"text": content})
}

func finishFromArgs(args map[string]any) (*event.Event, error) {
	summary, _ := args["summary"].(string)
	return Finish(summary)
}
