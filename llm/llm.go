// Package llm defines the pass-through LLM collaborator interface
// (spec.md §6, the "llm.*" config keys): a small, provider-agnostic
// request/response shape that every concrete provider adapter
// translates to and from its own SDK's wire types. Grounded on the
// teacher's model.Client shape (model/provider.go) and the
// goadesign-goa-ai pack repo's model.Client adapters
// (features/model/openai, features/model/anthropic, features/model/bedrock) —
// same "Options{Client, DefaultModel} + New/NewFromAPIKey + Complete"
// idiom, generalized to a Registry so config can select a provider by
// tag without the call site knowing which SDK backs it.
package llm

import (
	"context"

	"github.com/agentrt/agentrt/errs"
)

// Message is one turn of a chat-shaped conversation.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is a provider-agnostic completion request. Tools is left as a
// generic JSON-schema map rather than a typed union, matching the
// teacher's own model.ToolDefinition shape (name/description/input
// schema only — provider adapters translate it to their own tool
// wire format).
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// ToolDefinition names one callable tool and its JSON-schema parameters.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a provider's request to invoke one of the offered tools.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// Response is a provider-agnostic completion result.
type Response struct {
	Message          Message
	ToolCalls        []ToolCall
	PromptTokens     int
	CompletionTokens int
	// Cost is provider-reported or estimated spend in the same unit as
	// State.MetricsSnapshot().Cost (spec.md §4.3); zero when the
	// provider doesn't report pricing.
	Cost float64
}

// Client is the out-of-scope LLM collaborator (spec.md §6): a single
// pass-through completion call. Retries/backoff for transient provider
// errors are the Client's own concern (spec.md §9, "LLM retries bounded
// and pass-through") — callers treat a returned error as terminal for
// that step.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Factory constructs a Client from provider-specific options carried in
// config (spec.md §6 llm.* table). Mirrors runtime.Factory's shape.
type Factory func(cfg Config) (Client, error)

// Config carries the "llm" configuration section of spec.md §6, shared
// across every provider adapter; provider-specific fields (e.g. a
// Bedrock region) are opaque here and interpreted by each Factory.
type Config struct {
	Provider     string
	APIKey       string
	DefaultModel string
	BaseURL      string
	Region       string // AWS region, Bedrock only
}

// Registry is an explicit, process-scoped map from a provider tag to the
// Factory that builds that provider's Client, matching runtime.Registry
// (spec.md §9, "explicit registrations, no reflection").
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

// Create builds a Client for the given provider tag.
func (r *Registry) Create(tag string, cfg Config) (Client, error) {
	factory, ok := r.factories[tag]
	if !ok {
		return nil, errs.NewConfigurationError("no llm provider registered for tag "+tag, nil)
	}
	return factory(cfg)
}
