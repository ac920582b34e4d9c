//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package event

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// kindSchema holds the compiled schema registered for one kind; a nil
// resolved schema means the kind's payload is not validated.
type kindSchema struct {
	resolved *jsonschema.Resolved
}

var (
	registryMu         sync.RWMutex
	actionSchemas      = map[string]kindSchema{}
	observationSchemas = map[string]kindSchema{}
)

// RegisterActionKind adds schema to the closed set of known action kinds.
// schema is a JSON Schema document (as Go value, typically a map[string]any
// or *jsonschema.Schema) describing the kind's payload shape. Re-registering
// an already-known kind replaces its schema — used by plugins that extend
// the built-in set.
func RegisterActionKind(kind string, schema any) error {
	resolved, err := compile(schema)
	if err != nil {
		return fmt.Errorf("event: register action kind %q: %w", kind, err)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	actionSchemas[kind] = kindSchema{resolved: resolved}
	return nil
}

// RegisterObservationKind adds schema to the closed set of known
// observation kinds.
func RegisterObservationKind(kind string, schema any) error {
	resolved, err := compile(schema)
	if err != nil {
		return fmt.Errorf("event: register observation kind %q: %w", kind, err)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	observationSchemas[kind] = kindSchema{resolved: resolved}
	return nil
}

func compile(schema any) (*jsonschema.Resolved, error) {
	if schema == nil {
		return nil, nil
	}
	var s *jsonschema.Schema
	switch v := schema.(type) {
	case *jsonschema.Schema:
		s = v
	default:
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, err
		}
		s = &jsonschema.Schema{}
		if err := json.Unmarshal(raw, s); err != nil {
			return nil, err
		}
	}
	return s.Resolve(nil)
}

// ValidatePayload checks raw against the schema registered for
// (variant, kind). A kind with no registered schema (including any kind
// outside the built-in set that a plugin has not registered) is accepted
// unvalidated — the registry only rejects payloads it has an opinion
// about, it does not itself enforce the kind allowlist (that is the
// Runtime's job per spec.md §4.2).
func ValidatePayload(variant Variant, kind string, raw json.RawMessage) error {
	registryMu.RLock()
	var ks kindSchema
	var ok bool
	switch variant {
	case VariantAction:
		ks, ok = actionSchemas[kind]
	case VariantObservation:
		ks, ok = observationSchemas[kind]
	}
	registryMu.RUnlock()
	if !ok || ks.resolved == nil {
		return nil
	}
	var instance any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &instance); err != nil {
			return fmt.Errorf("event: payload for kind %q is not valid JSON: %w", kind, err)
		}
	}
	if err := ks.resolved.Validate(instance); err != nil {
		return fmt.Errorf("event: payload for kind %q failed schema validation: %w", kind, err)
	}
	return nil
}

// KnownActionKinds returns the currently registered action kinds.
func KnownActionKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(actionSchemas))
	for k := range actionSchemas {
		out = append(out, k)
	}
	return out
}

// KnownObservationKinds returns the currently registered observation kinds.
func KnownObservationKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(observationSchemas))
	for k := range observationSchemas {
		out = append(out, k)
	}
	return out
}

func schemaObject(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func init() {
	mustRegisterAction(ActionRunCommand, schemaObject(map[string]any{
		"command":    map[string]any{"type": "string"},
		"cwd":        map[string]any{"type": "string"},
		"env":        map[string]any{"type": "object"},
		"timeoutSec": map[string]any{"type": "number"},
		"stream":     map[string]any{"type": "boolean"},
	}, "command"))
	mustRegisterAction(ActionWriteFile, schemaObject(map[string]any{
		"path":    map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
	}, "path", "content"))
	mustRegisterAction(ActionReadFile, schemaObject(map[string]any{
		"path":  map[string]any{"type": "string"},
		"start": map[string]any{"type": "integer"},
		"end":   map[string]any{"type": "integer"},
	}, "path"))
	mustRegisterAction(ActionEditFile, schemaObject(map[string]any{
		"path":       map[string]any{"type": "string"},
		"startByte":  map[string]any{"type": "integer"},
		"endByte":    map[string]any{"type": "integer"},
		"newContent": map[string]any{"type": "string"},
	}, "path"))
	mustRegisterAction(ActionBrowse, schemaObject(map[string]any{
		"op":   map[string]any{"type": "string"},
		"args": map[string]any{"type": "object"},
	}, "op"))
	mustRegisterAction(ActionIPython, schemaObject(map[string]any{
		"code": map[string]any{"type": "string"},
	}, "code"))
	mustRegisterAction(ActionMessage, schemaObject(map[string]any{
		"text": map[string]any{"type": "string"},
	}, "text"))
	mustRegisterAction(ActionChangeAgentState, schemaObject(map[string]any{
		"state": map[string]any{"type": "string"},
	}, "state"))
	mustRegisterAction(ActionDelegate, schemaObject(map[string]any{
		"task":          map[string]any{"type": "string"},
		"maxIterations": map[string]any{"type": "integer"},
		"maxBudget":     map[string]any{"type": "number"},
	}, "task"))
	mustRegisterAction(ActionFinish, schemaObject(map[string]any{
		"summary": map[string]any{"type": "string"},
	}))
	mustRegisterAction(ActionCallTool, schemaObject(map[string]any{
		"tool":      map[string]any{"type": "string"},
		"arguments": map[string]any{"type": "object"},
	}, "tool"))

	mustRegisterObservation(ObservationCommandOutput, schemaObject(map[string]any{
		"stdout":   map[string]any{"type": "string"},
		"stderr":   map[string]any{"type": "string"},
		"exitCode": map[string]any{"type": "integer"},
		"timedOut": map[string]any{"type": "boolean"},
	}))
	mustRegisterObservation(ObservationFileContent, schemaObject(map[string]any{
		"path":    map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
	}))
	mustRegisterObservation(ObservationError, schemaObject(map[string]any{
		"errorKind": map[string]any{"type": "string"},
		"message":   map[string]any{"type": "string"},
	}, "message"))
	mustRegisterObservation(ObservationAgentState, schemaObject(map[string]any{
		"state": map[string]any{"type": "string"},
	}))
	mustRegisterObservation(ObservationUserMessage, schemaObject(map[string]any{
		"text": map[string]any{"type": "string"},
	}))
	mustRegisterObservation(ObservationRejected, schemaObject(map[string]any{
		"reason": map[string]any{"type": "string"},
	}))
	mustRegisterObservation(ObservationAgentDelegate, schemaObject(map[string]any{
		"summary": map[string]any{"type": "string"},
	}, "summary"))
}

func mustRegisterAction(kind string, schema any) {
	if err := RegisterActionKind(kind, schema); err != nil {
		panic(err)
	}
}

func mustRegisterObservation(kind string, schema any) {
	if err := RegisterObservationKind(kind, schema); err != nil {
		panic(err)
	}
}
