// Package workflow implements the Workflow Engine: phase sequencing with
// per-phase checkpoints, retries, timeouts, journaled execution, rewind
// and resume.
package workflow

import (
	"time"

	"github.com/beadwright/orchestrator/ids"
)

// State is a workflow's position in its lifecycle.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Paused    State = "paused"
	Completed State = "completed"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

// Terminal reports whether s is a terminal workflow state.
func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	default:
		return false
	}
}

var transitions = map[State][]State{
	Pending:   {Running},
	Running:   {Paused, Completed, Failed, Cancelled},
	Paused:    {Running, Cancelled},
	Completed: {},
	Failed:    {},
	Cancelled: {},
}

// CanTransition reports whether a workflow may move from 'from' to 'to'.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Phase is one step of a workflow.
type Phase struct {
	ID          ids.PhaseID
	Name        string
	Timeout     time.Duration
	Retries     int
	Description string
	Config      map[string]any
}

// Workflow is the mutable record the Engine drives.
type Workflow struct {
	ID                ids.WorkflowID
	Name              string
	Phases            []Phase
	CurrentPhaseIndex int
	State             State
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Metadata          map[string]string
}

// Progress returns CurrentPhaseIndex / len(Phases), or 0 for a workflow
// with no phases.
func (w *Workflow) Progress() float64 {
	if len(w.Phases) == 0 {
		return 0
	}
	return float64(w.CurrentPhaseIndex) / float64(len(w.Phases))
}

func (w *Workflow) currentPhase() (Phase, bool) {
	if w.CurrentPhaseIndex < 0 || w.CurrentPhaseIndex >= len(w.Phases) {
		return Phase{}, false
	}
	return w.Phases[w.CurrentPhaseIndex], true
}

// PhaseContext is passed to a phase handler on each attempt.
type PhaseContext struct {
	WorkflowID       ids.WorkflowID
	Phase            Phase
	Attempt          int
	PreviousOutput   []byte
	Metadata         map[string]string
}

// HandlerResult is what a phase handler returns.
type HandlerResult struct {
	Success    bool
	Data       []byte
	Message    string
	Artifacts  []string
	DurationMs int64
	Attempt    int
	Err        error
}

// Handler executes one phase attempt. Implementations must respect ctx
// cancellation for the hard per-attempt timeout enforced by the Engine.
type Handler func(ctx PhaseContextWithDeadline) HandlerResult

// PhaseContextWithDeadline bundles PhaseContext with the standard
// cancellation mechanism, kept as a distinct type so Handler's signature
// reads clearly at call sites instead of threading context.Context and
// PhaseContext as two separate parameters everywhere.
type PhaseContextWithDeadline struct {
	PhaseContext
	Done <-chan struct{}
}

// WorkflowResult is the terminal payload returned by a completed or failed
// run.
type WorkflowResult struct {
	WorkflowID ids.WorkflowID
	State      State
	Outputs    []HandlerResult
	Err        error
}
