package agent

import (
	"errors"
	"fmt"

	"tether/provider"
)

// Sentinel errors for the orchestrator's terminal conditions. Tool-level
// failures (unknown tool, unparseable arguments, server-reported errors) are
// never raised as Go errors: the router degrades them to error-flagged tool
// results that the LLM sees and reacts to.
var (
	// ErrSamplingRejected reports that the human-in-the-loop approval step
	// rejected a sampling request. The message must identify user rejection
	// so the MCP error surfaced to the server is distinguishable from a
	// generic failure.
	ErrSamplingRejected = errors.New("sampling request rejected by user")

	// ErrElicitationDeclined reports that the user declined an elicitation.
	ErrElicitationDeclined = errors.New("elicitation declined by user")

	// ErrElicitationCancelled reports that the user cancelled an elicitation.
	ErrElicitationCancelled = errors.New("elicitation cancelled")

	// ErrAborted reports that a loop invocation was cancelled before its turn
	// completed. No partial assistant message is committed, and no further
	// events are emitted for that invocation.
	ErrAborted = errors.New("loop invocation aborted")
)

// CompletionError wraps a completion-provider failure, preserving the raw
// message and the HTTP status when one exists. A 402 payment-required
// condition stays distinguishable so a caller can present a specific
// remediation.
type CompletionError struct {
	StatusCode int
	Err        error
}

// NewCompletionError classifies a provider error.
func NewCompletionError(err error) *CompletionError {
	return &CompletionError{
		StatusCode: provider.StatusCode(err),
		Err:        err,
	}
}

func (e *CompletionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion provider error: %v", e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// PaymentRequired reports whether this is a 402 condition.
func (e *CompletionError) PaymentRequired() bool {
	return e.StatusCode == 402
}

// ProtocolError wraps a malformed MCP payload encountered while parsing
// server-initiated traffic.
type ProtocolError struct {
	ServerID string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed payload from server %s: %v", e.ServerID, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ValidationError reports per-field form validation failures blocking an
// elicitation submission. Fields map field names to their first violation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("form validation failed for %d field(s)", len(e.Fields))
}
