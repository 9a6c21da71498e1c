// Package bead defines the orchestrator's fundamental tracked entity: a unit
// of work that moves through a fixed state machine as its phases execute,
// and the event variants that record that movement in the event log.
package bead

import (
	"fmt"
	"time"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// ComplexityTier classifies the expected effort of a bead.
type ComplexityTier string

const (
	Simple  ComplexityTier = "simple"
	Medium  ComplexityTier = "medium"
	Complex ComplexityTier = "complex"
)

// State is a bead's position in its lifecycle.
type State string

const (
	Pending    State = "pending"
	Scheduled  State = "scheduled"
	Ready      State = "ready"
	Dispatched State = "dispatched"
	Assigned   State = "assigned"
	Running    State = "running"
	Completed  State = "completed"
	Failed     State = "failed"
	Cancelled  State = "cancelled"
)

// Terminal reports whether s is a terminal bead state.
func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// Active reports whether s represents a bead actively occupying an agent.
func (s State) Active() bool {
	switch s {
	case Dispatched, Assigned, Running:
		return true
	default:
		return false
	}
}

// transitions enumerates the legal State -> State edges. A bead's state
// machine is deliberately permissive about retries (e.g. Running can go
// back to Ready after a release) but never allows a transition out of a
// terminal state.
var transitions = map[State][]State{
	Pending:    {Scheduled, Cancelled},
	Scheduled:  {Ready, Cancelled},
	Ready:      {Dispatched, Cancelled},
	Dispatched: {Assigned, Ready, Cancelled, Failed},
	Assigned:   {Running, Ready, Cancelled, Failed},
	Running:    {Completed, Failed, Ready, Cancelled},
	Completed:  {},
	Failed:     {},
	Cancelled:  {},
}

// CanTransition reports whether a bead may move from 'from' to 'to'.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *oerr.Error of kind InvalidState if the
// transition is not legal, nil otherwise.
func ValidateTransition(from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return oerr.New(oerr.InvalidState, "illegal bead transition %s -> %s", from, to).
		WithContext("from", string(from)).
		WithContext("to", string(to))
}

// Spec is the immutable description carried by a Created event.
type Spec struct {
	Title      string
	Complexity ComplexityTier
	Metadata   map[string]string
}

// PhaseOutput is the result a phase handler hands back on success.
type PhaseOutput struct {
	Success    bool
	Data       []byte
	Message    string
	Artifacts  []string
	DurationMs int64
}

// Result is the terminal payload of a Completed event.
type Result struct {
	Data     []byte
	Message  string
	Metadata map[string]string
}

// ErrorInfo is the terminal payload of a Failed event.
type ErrorInfo struct {
	Code    string
	Message string
	Context map[string]string
}

// EventKind tags which variant an Event carries.
type EventKind string

const (
	EventCreated            EventKind = "created"
	EventStateChanged       EventKind = "state_changed"
	EventPhaseCompleted     EventKind = "phase_completed"
	EventCompleted          EventKind = "completed"
	EventFailed             EventKind = "failed"
	EventWorkerUnhealthy    EventKind = "worker_unhealthy"
	EventDependencyAdded    EventKind = "dependency_added"
	EventDependencyRemoved  EventKind = "dependency_removed"
)

// Event is the tagged-variant BeadEvent. Exactly the fields relevant to Kind
// are populated; this mirrors a Rust enum's per-variant payload without
// Go's lacking sum types, in the same spirit as the teacher's NodeResult
// carrying an optional Delta alongside a required Status.
type Event struct {
	ID        ids.EventID
	BeadID    ids.BeadID
	Kind      EventKind
	Timestamp time.Time

	// EventCreated
	Spec Spec

	// EventStateChanged
	From State
	To   State

	// EventPhaseCompleted
	PhaseID   ids.PhaseID
	PhaseName string
	Output    PhaseOutput

	// EventCompleted
	Result Result

	// EventFailed
	Error ErrorInfo

	// EventWorkerUnhealthy
	AgentID string

	// EventDependencyAdded / EventDependencyRemoved
	TargetBeadID ids.BeadID
	RelationType string
	EdgeMetadata map[string]string
}

// Validate checks that an event carries required fields for its Kind and
// that, for StateChanged, the transition is legal.
func (e Event) Validate() error {
	if e.BeadID.IsZero() {
		return oerr.New(oerr.Validation, "event missing bead_id")
	}
	switch e.Kind {
	case EventCreated:
		if e.Spec.Title == "" {
			return oerr.New(oerr.Validation, "created event missing spec.title")
		}
	case EventStateChanged:
		return ValidateTransition(e.From, e.To)
	case EventPhaseCompleted:
		if e.PhaseID.IsZero() {
			return oerr.New(oerr.Validation, "phase_completed event missing phase_id")
		}
	case EventDependencyAdded, EventDependencyRemoved:
		if e.TargetBeadID.IsZero() {
			return oerr.New(oerr.Validation, "dependency event missing target_bead_id")
		}
	}
	return nil
}

// String renders a short human-readable description, used in logs.
func (e Event) String() string {
	return fmt.Sprintf("%s[%s] bead=%s", e.Kind, e.ID, e.BeadID)
}
