// Package agenterrors defines the error taxonomy shared across the
// viewport, snapshot, catalog and agent packages.
package agenterrors

import (
	"errors"
	"fmt"
)

// ViewportError is the root of browser-lifecycle failures.
type ViewportError struct {
	Op    string
	Cause error
}

func (e *ViewportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("viewport: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("viewport: %s", e.Op)
}

func (e *ViewportError) Unwrap() error { return e.Cause }

// LaunchFailed means the browser process itself could not start.
func LaunchFailed(cause error) error {
	return &ViewportError{Op: "launch", Cause: cause}
}

// NewViewportError wraps cause under op, for the viewport package's own
// lifecycle operations (navigate, scroll, capture, tab management) that
// don't warrant their own named constructor.
func NewViewportError(op string, cause error) error {
	return &ViewportError{Op: op, Cause: cause}
}

// NavigationFailed wraps a navigation error with the target URL.
type NavigationFailedErr struct {
	URL   string
	Cause error
}

func (e *NavigationFailedErr) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Cause)
}

func (e *NavigationFailedErr) Unwrap() error { return e.Cause }

func NavigationFailed(url string, cause error) error {
	return &NavigationFailedErr{URL: url, Cause: cause}
}

// ErrViewportCrashed is returned when the page's render process crashes.
var ErrViewportCrashed = errors.New("viewport crashed")

// PageExtractionError covers any failure in snapshot capture, tree
// rendering or element lookup.
type PageExtractionError struct {
	Op    string
	Cause error
}

func (e *PageExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("page extraction: %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("page extraction: %s", e.Op)
}

func (e *PageExtractionError) Unwrap() error { return e.Cause }

func ElementNotFound(index int) error {
	return &PageExtractionError{Op: fmt.Sprintf("element index %d not found", index)}
}

func ExtractionFailed(op string, cause error) error {
	return &PageExtractionError{Op: op, Cause: cause}
}

// CommandFailed is the single error type the executor surfaces for a
// failed action, whatever the underlying cause (validation or handler).
type CommandFailed struct {
	Action  string
	Message string
	Cause   error
}

func (e *CommandFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("command %s failed: %s: %v", e.Action, e.Message, e.Cause)
	}
	return fmt.Sprintf("command %s failed: %s", e.Action, e.Message)
}

func (e *CommandFailed) Unwrap() error { return e.Cause }

func NewCommandFailed(action, message string, cause error) error {
	return &CommandFailed{Action: action, Message: message, Cause: cause}
}

// CommandNotRegistered is returned by the catalog when an unknown action
// name is requested.
type CommandNotRegistered struct {
	Action string
}

func (e *CommandNotRegistered) Error() string {
	return fmt.Sprintf("command %q is not registered", e.Action)
}

// CommandValidationFailed wraps schema validation failures with the
// aggregated validator message.
type CommandValidationFailed struct {
	Action  string
	Message string
}

func (e *CommandValidationFailed) Error() string {
	return fmt.Sprintf("command %q failed validation: %s", e.Action, e.Message)
}

// ModelError is a generic inference failure.
type ModelError struct {
	Cause error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model error: %v", e.Cause) }
func (e *ModelError) Unwrap() error { return e.Cause }

func NewModelError(cause error) error { return &ModelError{Cause: cause} }

// ModelThrottled signals a rate-limit response, optionally with a
// server-suggested retry delay in milliseconds.
type ModelThrottled struct {
	RetryAfterMs int
	Cause        error
}

func (e *ModelThrottled) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model throttled, retry after %dms: %v", e.RetryAfterMs, e.Cause)
	}
	return fmt.Sprintf("model throttled, retry after %dms", e.RetryAfterMs)
}

func (e *ModelThrottled) Unwrap() error { return e.Cause }

// AgentError is the root of loop-level failures.
type AgentError struct {
	Op string
}

func (e *AgentError) Error() string { return fmt.Sprintf("agent: %s", e.Op) }

// ErrAgentStalled terminates a run after too many consecutive failed
// steps.
var ErrAgentStalled = &AgentError{Op: "stalled"}

// ErrStepLimitReached terminates a run once the step budget is exhausted.
var ErrStepLimitReached = &AgentError{Op: "step limit reached"}

// PolicyViolation describes a blocked URL. No package currently returns or
// converts this type: the url-policy guard publishes violations only as
// viewport EventPolicyViolation events, and the agent loop does not
// subscribe to them, so a violation does not become a failed CommandResult.
type PolicyViolation struct {
	URL    string
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation for %s: %s", e.URL, e.Reason)
}

// IsCommandFailed reports whether err (or any error it wraps) is a
// CommandFailed, the single failure shape the loop expects from the
// executor.
func IsCommandFailed(err error) bool {
	var cf *CommandFailed
	return errors.As(err, &cf)
}
