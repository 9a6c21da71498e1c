package emit

// Event is one observability event emitted during workflow execution:
// a phase starting or finishing, a checkpoint, a rewind.
type Event struct {
	// WorkflowID identifies the workflow execution that emitted this event.
	WorkflowID string

	// Step is the sequential step number in the workflow. Zero for
	// workflow-level events that aren't tied to a single phase.
	Step int

	// PhaseID identifies which phase emitted this event, empty for
	// workflow-level events.
	PhaseID string

	// Msg names the event, e.g. "phase_started", "phase_failed",
	// "checkpoint_created".
	Msg string

	// Meta carries event-specific data. Common keys: "duration_ms",
	// "error", "checkpoint_id", "ratio", "attempt".
	Meta map[string]interface{}
}
