//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package event defines the atomic unit of the session log: a tagged
// variant of Action and Observation events, plus the closed, versioned
// registry of kinds each variant may carry.
//
// Event polymorphism is modeled as a discriminator (Variant/Kind) plus a
// kind-specific payload rather than class inheritance, so a consumer
// (runtime, controller, front door) can dispatch on Kind without needing
// to know about every payload type that exists, and so the wire format
// stays a single flat JSON object.
package event

import (
	"encoding/json"
	"time"
)

// Variant discriminates the two disjoint event shapes.
type Variant string

const (
	// VariantAction is something proposed to be done.
	VariantAction Variant = "action"
	// VariantObservation is a result caused by (or unsolicited alongside) an Action.
	VariantObservation Variant = "observation"
)

// Source tags who originated an event.
type Source string

const (
	SourceAgent       Source = "agent"
	SourceUser        Source = "user"
	SourceEnvironment Source = "environment"
)

// ConfirmationState tags an Action's confirmation lifecycle.
type ConfirmationState string

const (
	ConfirmationNone       ConfirmationState = ""
	ConfirmationUnconfirmed ConfirmationState = "unconfirmed"
	ConfirmationConfirmed  ConfirmationState = "confirmed"
	ConfirmationRejected   ConfirmationState = "rejected"
)

// SecurityRisk tags an Action's assessed risk level.
type SecurityRisk string

const (
	RiskUnknown SecurityRisk = "unknown"
	RiskLow     SecurityRisk = "low"
	RiskMedium  SecurityRisk = "medium"
	RiskHigh    SecurityRisk = "high"
)

// Built-in action kinds (spec.md §3, "closed, versioned set").
const (
	ActionRunCommand       = "run_command"
	ActionWriteFile        = "write_file"
	ActionReadFile         = "read_file"
	ActionEditFile         = "edit_file"
	ActionBrowse           = "browse"
	ActionIPython          = "ipython"
	ActionMessage          = "message"
	ActionChangeAgentState = "change_agent_state"
	ActionDelegate         = "delegate"
	ActionFinish           = "finish"
	// ActionCallTool dispatches to an externally configured MCP tool
	// server (SPEC_FULL.md §3.1 supplement), keeping run_command's
	// shell-process semantics distinct from arbitrary-tool dispatch.
	ActionCallTool = "call_tool"
)

// Built-in observation kinds.
const (
	ObservationCommandOutput    = "command_output"
	ObservationFileContent      = "file_content"
	ObservationBrowserSnapshot  = "browser_snapshot"
	ObservationError            = "error"
	ObservationAgentState       = "agent_state_changed"
	ObservationUserMessage      = "user_message"
	ObservationRejected         = "rejected"
	ObservationAgentDelegate    = "agent_delegate"
)

// Event is the atomic, immutable-after-append unit of the session log.
//
// ID is assigned by the EventStream at append time (dense, monotonic,
// never reused — invariant 1/2 of spec.md §8). Cause, when non-nil,
// points at a strictly earlier Action ID (invariant on Observations).
type Event struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Variant   Variant         `json:"variant"`
	Kind      string          `json:"kind"`
	Source    Source          `json:"source"`
	Cause     *int64          `json:"cause,omitempty"`
	Payload   json.RawMessage `json:"payload"`

	// Action-only fields. Zero-valued and omitted for Observations.
	SecurityRisk     SecurityRisk      `json:"securityRisk,omitempty"`
	ConfirmationState ConfirmationState `json:"confirmationState,omitempty"`

	// Branch tags which delegation frame produced this event, so a
	// parent controller's history view can filter child-frame events
	// out of its own range without a physically separate stream
	// (SPEC_FULL.md §4.4.1 — the decided reading of the Open Question).
	Branch string `json:"branch,omitempty"`
}

// Option configures a new Event.
type Option func(*Event)

// WithCause sets the cause pointer (Action ID this Observation answers).
func WithCause(actionID int64) Option {
	return func(e *Event) { e.Cause = &actionID }
}

// WithSecurityRisk tags an Action with an assessed risk level.
func WithSecurityRisk(risk SecurityRisk) Option {
	return func(e *Event) { e.SecurityRisk = risk }
}

// WithConfirmationState tags an Action's confirmation lifecycle state.
func WithConfirmationState(state ConfirmationState) Option {
	return func(e *Event) { e.ConfirmationState = state }
}

// WithBranch tags an event with a delegation frame id.
func WithBranch(branch string) Option {
	return func(e *Event) { e.Branch = branch }
}

// NewAction builds an unassigned (ID==0, stamped at append time) Action
// event. payload is marshaled to JSON and validated against the kind's
// registered schema, if one is registered.
func NewAction(source Source, kind string, payload any, opts ...Option) (*Event, error) {
	return newEvent(VariantAction, source, kind, payload, opts...)
}

// NewObservation builds an unassigned Observation event.
func NewObservation(source Source, kind string, payload any, opts ...Option) (*Event, error) {
	return newEvent(VariantObservation, source, kind, payload, opts...)
}

func newEvent(variant Variant, source Source, kind string, payload any, opts ...Option) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := ValidatePayload(variant, kind, raw); err != nil {
		return nil, err
	}
	e := &Event{
		Timestamp: time.Now(),
		Variant:   variant,
		Kind:      kind,
		Source:    source,
		Payload:   raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Clone returns a deep copy of the event, safe for a subscriber to hold
// independently of the stream's own copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Cause != nil {
		c := *e.Cause
		clone.Cause = &c
	}
	if e.Payload != nil {
		clone.Payload = make(json.RawMessage, len(e.Payload))
		copy(clone.Payload, e.Payload)
	}
	return &clone
}

// IsAction reports whether the event is the Action variant.
func (e *Event) IsAction() bool { return e != nil && e.Variant == VariantAction }

// IsObservation reports whether the event is the Observation variant.
func (e *Event) IsObservation() bool { return e != nil && e.Variant == VariantObservation }

// UnmarshalPayload decodes the event's payload into dst.
func (e *Event) UnmarshalPayload(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
