// Package eventlog implements the orchestrator's append-only, fsync-durable
// event log: the single source of truth every other component replays from.
package eventlog

import (
	"context"
	"time"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
)

// Query filters a call to Log.Query. Zero values mean "no filter" for that
// field. BeforeTS and AfterTS are strict (exclusive) per spec.
type Query struct {
	StreamID  ids.BeadID
	EventType bead.EventKind
	AfterTS   time.Time
	BeforeTS  time.Time
	Limit     int
}

// Log is the Event Log contract: atomic, fsync-durable append with ordered
// read and crash-consistent recovery.
//
// AppendEvent returns only after the event's bytes are fsynced; a caller
// that receives a nil error may treat the event as durable even across an
// immediate crash. ReadEvents, ReplayFrom and Query never mutate the log.
type Log interface {
	// AppendEvent durably persists e, assigning it the next EventID in
	// append order. Returns the assigned ID.
	AppendEvent(ctx context.Context, e bead.Event) (ids.EventID, error)

	// ReadEvents returns every event recorded for beadID, in append order.
	// An unknown bead yields an empty slice, never an error.
	ReadEvents(ctx context.Context, beadID ids.BeadID) ([]bead.Event, error)

	// ReplayFrom returns every event strictly after afterID, across all
	// beads, in global append order.
	ReplayFrom(ctx context.Context, afterID ids.EventID) ([]bead.Event, error)

	// LastEventID returns the most recently appended event's ID, or the
	// zero ID if the log is empty.
	LastEventID(ctx context.Context) (ids.EventID, error)

	// Query returns events matching q, most-recent-filter-applied last:
	// stream, then type, then the (after, before) time window, then limit.
	Query(ctx context.Context, q Query) ([]bead.Event, error)

	// Close releases any underlying file handles or connections.
	Close() error
}

// matches reports whether e satisfies q. Shared by every backend so the
// filtering semantics — strict time bounds, empty filters matching
// everything — are identical regardless of storage.
func matches(e bead.Event, q Query) bool {
	if !q.StreamID.IsZero() && e.BeadID != q.StreamID {
		return false
	}
	if q.EventType != "" && e.Kind != q.EventType {
		return false
	}
	if !q.AfterTS.IsZero() && !e.Timestamp.After(q.AfterTS) {
		return false
	}
	if !q.BeforeTS.IsZero() && !e.Timestamp.Before(q.BeforeTS) {
		return false
	}
	return true
}

func applyLimit(events []bead.Event, limit int) []bead.Event {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}
