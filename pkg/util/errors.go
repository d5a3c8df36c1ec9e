// Package util provides logging, error types, and interface-name helpers shared
// by the activation core.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// classify failures with errors.Is.
var (
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrTransport           = errors.New("transport failure")
	ErrLifecycle           = errors.New("driver lifecycle violation")
	ErrNoDriver            = errors.New("no activation driver supports endpoint")
	ErrNotMounted          = errors.New("device not mounted")
	ErrDeviceLocked        = errors.New("device locked by another holder")
	ErrNotFound            = errors.New("resource not found")
	ErrPreconditionFailed  = errors.New("precondition not met")
	ErrValidationFailed    = errors.New("validation failed")
	ErrPermissionDenied    = errors.New("permission denied")
)

// ResourceError reports a missing backend feature, mount point, bandwidth
// profile, loopback address or similar prerequisite.
type ResourceError struct {
	Device   string
	Resource string
	Details  string
}

func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("%s unavailable", e.Resource)
	if e.Device != "" {
		msg += " on " + e.Device
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *ResourceError) Unwrap() error {
	return ErrResourceUnavailable
}

// NewResourceError creates a resource-unavailable error
func NewResourceError(device, resource, details string) *ResourceError {
	return &ResourceError{Device: device, Resource: resource, Details: details}
}

// TransportError reports an authentication, HTTP or transaction failure. Body
// carries the raw device response for diagnostics.
type TransportError struct {
	Device    string
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s on %s failed", e.Operation, e.Device)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": HTTP %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, " (response: %s)", strings.TrimSpace(e.Body))
	}
	return sb.String()
}

// Is matches ErrTransport in addition to the wrapped cause.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// LifecycleError is returned when a driver method is invoked out of order.
// It is a programming error and is never retried.
type LifecycleError struct {
	Driver    string
	State     string
	Operation string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("driver %s: %s not allowed in state %s", e.Driver, e.Operation, e.State)
}

func (e *LifecycleError) Unwrap() error {
	return ErrLifecycle
}

// PreconditionError represents a failed precondition check with context
type PreconditionError struct {
	Operation    string
	Resource     string
	Precondition string
	Details      string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition failed for %s on %s: %s", e.Operation, e.Resource, e.Precondition)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(operation, resource, precondition, details string) *PreconditionError {
	return &PreconditionError{
		Operation:    operation,
		Resource:     resource,
		Precondition: precondition,
		Details:      details,
	}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// RollbackError carries the failure that triggered a rollback together with
// any failures of the rollback itself. The device may be left inconsistent
// when RollbackErrs is non-empty.
type RollbackError struct {
	Cause        error
	RollbackErrs []error
}

func (e *RollbackError) Error() string {
	if len(e.RollbackErrs) == 0 {
		return e.Cause.Error()
	}
	msgs := make([]string, len(e.RollbackErrs))
	for i, err := range e.RollbackErrs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%v; rollback failed: %s", e.Cause, strings.Join(msgs, "; "))
}

func (e *RollbackError) Unwrap() error {
	return e.Cause
}
