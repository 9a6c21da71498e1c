package bead

import (
	"time"

	"github.com/beadwright/orchestrator/ids"
)

// Aggregate is the folded projection of a bead's event stream: the state
// the Replay & Checkpoint component reconstructs and the Workflow Engine
// reads and mutates as phases complete.
type Aggregate struct {
	ID              ids.BeadID
	Spec            Spec
	State           State
	Phases          []PhaseRecord
	LastEventID     ids.EventID
	LastEventTS     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Result          *Result
	Error           *ErrorInfo
}

// PhaseRecord is the folded record of a single PhaseCompleted event.
type PhaseRecord struct {
	PhaseID   ids.PhaseID
	PhaseName string
	Output    PhaseOutput
	Timestamp time.Time
}

// Clone returns a deep-enough copy of a for checkpointing: phases is copied
// so a later mutation of the live aggregate cannot corrupt a stored
// snapshot.
func (a Aggregate) Clone() Aggregate {
	cp := a
	cp.Phases = append([]PhaseRecord(nil), a.Phases...)
	if a.Result != nil {
		r := *a.Result
		cp.Result = &r
	}
	if a.Error != nil {
		e := *a.Error
		cp.Error = &e
	}
	return cp
}
