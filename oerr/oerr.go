// Package oerr provides the orchestrator's typed error taxonomy.
//
// Every fallible operation in the orchestrator returns an *Error carrying a
// Kind, a message, optional structured context, and an optional suggestion —
// the {code, message, context, suggestion} envelope callers can surface at a
// process boundary without losing the underlying cause.
package oerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling and for deciding
// whether it should be recovered locally or surfaced upward.
type Kind string

const (
	// Validation covers bad arguments: empty IDs, weights that don't sum to
	// 1, malformed configuration.
	Validation Kind = "validation"
	// NotFound covers references to entities that do not exist: unknown
	// bead, no checkpoint for a phase, unknown session.
	NotFound Kind = "not_found"
	// Conflict covers state collisions: duplicate registration, shutdown
	// already in progress, capacity exceeded.
	Conflict Kind = "conflict"
	// InvalidState covers illegal state transitions: resuming a workflow
	// that isn't paused, an agent transition with no valid edge.
	InvalidState Kind = "invalid_state"
	// Durability covers failures of the durability guarantees themselves:
	// fsync failure, WAL corruption beyond truncation, serialization
	// failure.
	Durability Kind = "durability"
	// Timeout covers deadline exceedance: phase timeout, shutdown deadline.
	Timeout Kind = "timeout"
	// External covers failures attributed to a collaborator outside this
	// process: underlying persistence error, a virtual object handler's own
	// error code.
	External Kind = "external"
)

// Error is the orchestrator's structured error envelope.
type Error struct {
	Kind       Kind
	Message    string
	Context    map[string]any
	Suggestion string
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// WithContext returns a copy of e with the given key/value merged into its
// Context map.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// Wrap returns a copy of e with cause attached, preserved for errors.Is/As
// chains without being part of the rendered message's structured fields.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of the given kind, unwrapping as
// needed. It lets callers write oerr.Is(err, oerr.NotFound) instead of a
// type switch.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

// Sentinel errors for conditions callers commonly check with errors.Is,
// mirroring the checkpoint/store sentinel style: a package-level var for
// conditions tested by identity rather than by Kind alone.
var (
	// ErrDuplicate is wrapped by DurableChannel.Send/SendWithMode when the
	// Delivery Tracker resolves the message's idempotency key to a prior,
	// still-live delivery.
	ErrDuplicate = errors.New("duplicate idempotency key")
	// ErrMaxAttemptsExceeded is returned once a delivery's attempt counter
	// reaches its configured maximum.
	ErrMaxAttemptsExceeded = errors.New("max delivery attempts exceeded")
	// ErrQueueFull is returned by DurableChannel.Send when max_queue_depth
	// is reached.
	ErrQueueFull = errors.New("channel queue full")
	// ErrCircuitOpen names a call rejected by an open circuit breaker. No
	// package returns it: breaker.CircuitBreaker.Execute returns
	// gobreaker.ErrOpenState for that case.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrShutdownInProgress names a shutdown already under way. No package
	// returns it: shutdown.Coordinator.Initiate ignores a second call.
	ErrShutdownInProgress = errors.New("shutdown already in progress")
)
