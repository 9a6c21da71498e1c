// Package emit provides event emission and observability for workflow execution.
package emit

import "context"

// Emitter receives observability events from a running workflow and routes
// them to a backend: a log stream, a tracing span, a metrics counter. The
// orchestrator daemon fans a single stream out to several at once.
//
// Implementations must be non-blocking and thread-safe — Emit/EmitBatch can
// be called concurrently from multiple phase handlers — and must never panic
// on a malformed event.
type Emitter interface {
	// Emit sends a single event. Implementations that cannot deliver
	// immediately should buffer or drop rather than block the caller.
	Emit(event Event)

	// EmitBatch sends events in emission order. An error indicates a
	// configuration-level failure, not a per-event delivery failure.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been sent, or ctx is
	// done. Safe to call more than once.
	Flush(ctx context.Context) error
}
