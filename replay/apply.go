// Package replay reconstructs bead state deterministically from the event
// log, and manages the compressed checkpoints that let that reconstruction
// skip most of the log.
package replay

import (
	"fmt"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/oerr"
)

// ApplyEvent folds a single event into state, enforcing the ordering
// invariants from §4.2: the event's ID must be strictly greater than the
// last-applied ID for its bead, and its timestamp must not precede the
// last-applied timestamp. StateChanged events additionally pass through
// the bead package's transition validator.
//
// ApplyEvent never mutates the state it receives; it returns the next
// state. This keeps replay a pure fold, matching the teacher's own
// Reducer[S] contract (same inputs always produce the same output).
func ApplyEvent(state bead.Aggregate, e bead.Event) (bead.Aggregate, error) {
	if !state.LastEventID.IsZero() && !state.LastEventID.Before(e.ID) {
		return state, oerr.New(oerr.Validation, "out-of-order event %s after %s", e.ID, state.LastEventID).
			WithContext("bead_id", e.BeadID.String())
	}
	if !state.LastEventTS.IsZero() && e.Timestamp.Before(state.LastEventTS) {
		return state, oerr.New(oerr.Validation, "event %s timestamp %s precedes last-applied %s",
			e.ID, e.Timestamp, state.LastEventTS)
	}

	next := state.Clone()
	next.LastEventID = e.ID
	next.LastEventTS = e.Timestamp
	next.UpdatedAt = e.Timestamp

	switch e.Kind {
	case bead.EventCreated:
		next.ID = e.BeadID
		next.Spec = e.Spec
		next.State = bead.Pending
		next.CreatedAt = e.Timestamp

	case bead.EventStateChanged:
		if err := bead.ValidateTransition(e.From, e.To); err != nil {
			return state, err
		}
		if next.State != "" && next.State != e.From {
			return state, oerr.New(oerr.InvalidState,
				"state_changed event expects from=%s but aggregate is %s", e.From, next.State)
		}
		next.State = e.To

	case bead.EventPhaseCompleted:
		next.Phases = append(next.Phases, bead.PhaseRecord{
			PhaseID: e.PhaseID, PhaseName: e.PhaseName, Output: e.Output, Timestamp: e.Timestamp,
		})

	case bead.EventCompleted:
		r := e.Result
		next.Result = &r
		next.State = bead.Completed

	case bead.EventFailed:
		errInfo := e.Error
		next.Error = &errInfo
		next.State = bead.Failed

	case bead.EventWorkerUnhealthy, bead.EventDependencyAdded, bead.EventDependencyRemoved:
		// Auxiliary events carry no bead-aggregate-local state change; they
		// are folded into the DependencyGraph and health monitor instead.

	default:
		return state, oerr.New(oerr.Validation, "unknown event kind %q", e.Kind)
	}

	return next, nil
}

// FoldError reports the position and cause of the first event that failed
// to apply during ApplyEvents.
type FoldError struct {
	Position int
	Cause    error
}

func (f *FoldError) Error() string {
	return fmt.Sprintf("replay aborted at position %d: %v", f.Position, f.Cause)
}

func (f *FoldError) Unwrap() error { return f.Cause }

// ApplyEvents folds events onto state in order using a fail-fast fold: the
// first invalid event aborts replay with its position and reason, wrapped
// in a *FoldError. Replay is deterministic — equal input sequences always
// yield equal states.
func ApplyEvents(state bead.Aggregate, events []bead.Event) (bead.Aggregate, error) {
	for i, e := range events {
		next, err := ApplyEvent(state, e)
		if err != nil {
			return state, &FoldError{Position: i, Cause: err}
		}
		state = next
	}
	return state, nil
}
