//
// Tencent is pleased to support the open source community by making
// trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package errs defines the error taxonomy shared by the event stream,
// runtime, controller, and conversation manager. Each kind is a distinct
// type so callers can discriminate with errors.As instead of string
// matching, following the same New*Error/As*Error pairing the rest of
// this module uses.
package errs

import "errors"

// ConfigurationError signals invalid or missing required configuration.
// Surfaced at ConversationManager.Create; fatal for the conversation.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return "configuration error: " + e.Message + ": " + e.Cause.Error()
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{Message: message, Cause: cause}
}

// AsConfigurationError checks if err is a ConfigurationError.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var e *ConfigurationError
	return e, errors.As(err, &e)
}

// StorageError signals a persistence failure from EventStream.Append.
// The controller converts this into the error terminal state.
type StorageError struct {
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return "storage error: " + e.Message + ": " + e.Cause.Error()
	}
	return "storage error: " + e.Message
}

func (e *StorageError) Unwrap() error { return e.Cause }

// NewStorageError creates a StorageError.
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{Message: message, Cause: cause}
}

// AsStorageError checks if err is a StorageError.
func AsStorageError(err error) (*StorageError, bool) {
	var e *StorageError
	return e, errors.As(err, &e)
}

// RuntimeUnavailable signals the sandbox could not be made ready.
// Surfaced from Runtime.Connect or the first dispatched action; fatal.
type RuntimeUnavailable struct {
	Message string
	Cause   error
}

func (e *RuntimeUnavailable) Error() string {
	if e.Cause != nil {
		return "runtime unavailable: " + e.Message + ": " + e.Cause.Error()
	}
	return "runtime unavailable: " + e.Message
}

func (e *RuntimeUnavailable) Unwrap() error { return e.Cause }

// NewRuntimeUnavailable creates a RuntimeUnavailable error.
func NewRuntimeUnavailable(message string, cause error) *RuntimeUnavailable {
	return &RuntimeUnavailable{Message: message, Cause: cause}
}

// AsRuntimeUnavailable checks if err is a RuntimeUnavailable error.
func AsRuntimeUnavailable(err error) (*RuntimeUnavailable, bool) {
	var e *RuntimeUnavailable
	return e, errors.As(err, &e)
}

// RuntimeInternalError signals the sandbox crashed or violated protocol
// mid-call. Transitions the controller to the error terminal state.
type RuntimeInternalError struct {
	Message string
	Cause   error
}

func (e *RuntimeInternalError) Error() string {
	if e.Cause != nil {
		return "runtime internal error: " + e.Message + ": " + e.Cause.Error()
	}
	return "runtime internal error: " + e.Message
}

func (e *RuntimeInternalError) Unwrap() error { return e.Cause }

// NewRuntimeInternalError creates a RuntimeInternalError.
func NewRuntimeInternalError(message string, cause error) *RuntimeInternalError {
	return &RuntimeInternalError{Message: message, Cause: cause}
}

// AsRuntimeInternalError checks if err is a RuntimeInternalError.
func AsRuntimeInternalError(err error) (*RuntimeInternalError, bool) {
	var e *RuntimeInternalError
	return e, errors.As(err, &e)
}

// ActionNotPermitted signals an action kind rejected by the runtime
// allowlist. Appended as an ErrorObservation; non-fatal.
type ActionNotPermitted struct {
	Kind string
}

func (e *ActionNotPermitted) Error() string {
	return "action not permitted: " + e.Kind
}

// NewActionNotPermitted creates an ActionNotPermitted error.
func NewActionNotPermitted(kind string) *ActionNotPermitted {
	return &ActionNotPermitted{Kind: kind}
}

// AsActionNotPermitted checks if err is an ActionNotPermitted error.
func AsActionNotPermitted(err error) (*ActionNotPermitted, bool) {
	var e *ActionNotPermitted
	return e, errors.As(err, &e)
}

// ConfirmationRequired signals an action was not dispatched pending user
// confirmation. The controller transitions to awaiting_user_confirmation.
type ConfirmationRequired struct {
	ActionID int64
}

func (e *ConfirmationRequired) Error() string {
	return "confirmation required for action"
}

// NewConfirmationRequired creates a ConfirmationRequired error.
func NewConfirmationRequired(actionID int64) *ConfirmationRequired {
	return &ConfirmationRequired{ActionID: actionID}
}

// AsConfirmationRequired checks if err is a ConfirmationRequired error.
func AsConfirmationRequired(err error) (*ConfirmationRequired, bool) {
	var e *ConfirmationRequired
	return e, errors.As(err, &e)
}

// ExecutionError signals a non-zero exit, timeout, or other semantic
// failure of a dispatched action. Reified as an ErrorObservation;
// non-fatal.
type ExecutionError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return "execution error (" + e.Kind + "): " + e.Message + ": " + e.Cause.Error()
	}
	return "execution error (" + e.Kind + "): " + e.Message
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// NewExecutionError creates an ExecutionError.
func NewExecutionError(kind, message string, cause error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message, Cause: cause}
}

// AsExecutionError checks if err is an ExecutionError.
func AsExecutionError(err error) (*ExecutionError, bool) {
	var e *ExecutionError
	return e, errors.As(err, &e)
}

// AgentError signals the agent raised while producing an action. Reified
// as an ErrorObservation; repeated beyond a threshold escalates to error.
type AgentError struct {
	Message string
	Cause   error
}

func (e *AgentError) Error() string {
	if e.Cause != nil {
		return "agent error: " + e.Message + ": " + e.Cause.Error()
	}
	return "agent error: " + e.Message
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NewAgentError creates an AgentError.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{Message: message, Cause: cause}
}

// AsAgentError checks if err is an AgentError.
func AsAgentError(err error) (*AgentError, bool) {
	var e *AgentError
	return e, errors.As(err, &e)
}

// BudgetExceeded signals max_budget was reached. Appended as an
// informational observation; the controller transitions to stopped.
type BudgetExceeded struct {
	Spent, Max float64
}

func (e *BudgetExceeded) Error() string { return "budget exceeded" }

// NewBudgetExceeded creates a BudgetExceeded error.
func NewBudgetExceeded(spent, max float64) *BudgetExceeded {
	return &BudgetExceeded{Spent: spent, Max: max}
}

// AsBudgetExceeded checks if err is a BudgetExceeded error.
func AsBudgetExceeded(err error) (*BudgetExceeded, bool) {
	var e *BudgetExceeded
	return e, errors.As(err, &e)
}

// IterationsExceeded signals max_iterations was reached. Appended as an
// informational observation; the controller transitions to stopped.
type IterationsExceeded struct {
	Iteration, Max int
}

func (e *IterationsExceeded) Error() string { return "iterations exceeded" }

// NewIterationsExceeded creates an IterationsExceeded error.
func NewIterationsExceeded(iteration, max int) *IterationsExceeded {
	return &IterationsExceeded{Iteration: iteration, Max: max}
}

// AsIterationsExceeded checks if err is an IterationsExceeded error.
func AsIterationsExceeded(err error) (*IterationsExceeded, bool) {
	var e *IterationsExceeded
	return e, errors.As(err, &e)
}

// ConversationLimitReached signals ConversationManager.Create exceeded a
// configured concurrency cap.
type ConversationLimitReached struct {
	Limit int
}

func (e *ConversationLimitReached) Error() string {
	return "conversation limit reached"
}

// NewConversationLimitReached creates a ConversationLimitReached error.
func NewConversationLimitReached(limit int) *ConversationLimitReached {
	return &ConversationLimitReached{Limit: limit}
}

// AsConversationLimitReached checks if err is a ConversationLimitReached error.
func AsConversationLimitReached(err error) (*ConversationLimitReached, bool) {
	var e *ConversationLimitReached
	return e, errors.As(err, &e)
}

// NotSupported signals an optional Runtime operation (pause/resume, or an
// MCP-backed action kind with no server configured) is not implemented by
// the active Runtime.
type NotSupported struct {
	Operation string
}

func (e *NotSupported) Error() string {
	return "not supported: " + e.Operation
}

// NewNotSupported creates a NotSupported error.
func NewNotSupported(operation string) *NotSupported {
	return &NotSupported{Operation: operation}
}

// AsNotSupported checks if err is a NotSupported error.
func AsNotSupported(err error) (*NotSupported, bool) {
	var e *NotSupported
	return e, errors.As(err, &e)
}

// NotFound signals a lookup (event ID, conversation ID) found nothing.
type NotFound struct {
	What string
}

func (e *NotFound) Error() string { return e.What + " not found" }

// NewNotFound creates a NotFound error.
func NewNotFound(what string) *NotFound { return &NotFound{What: what} }

// AsNotFound checks if err is a NotFound error.
func AsNotFound(err error) (*NotFound, bool) {
	var e *NotFound
	return e, errors.As(err, &e)
}
