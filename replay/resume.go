package replay

import (
	"context"
	"time"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/eventlog"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// ReplayState records the outcome of Resume: which checkpoint was used,
// when it was taken, and how much of the tail log was replayed on top of
// it.
type ReplayState struct {
	CheckpointID   ids.CheckpointID
	Timestamp      time.Time
	EventsReplayed int
	LastEventTS    time.Time
	State          bead.Aggregate
}

// Resume loads checkpoint id, validates its timestamp against the log's
// genesis, loads every event strictly after that timestamp, and folds them
// onto the checkpointed state.
//
// Errors are the three named in §4.2: CheckpointNotFound (the checkpoint
// store has no such id — surfaced as oerr.NotFound), TimestampMismatch (the
// checkpoint predates the log's first event — oerr.Validation), and
// EventLoadFailed (the log itself failed to serve events — oerr.External).
func Resume(ctx context.Context, id ids.CheckpointID, checkpoints CheckpointStore, log eventlog.Log) (ReplayState, error) {
	cp, err := checkpoints.Load(ctx, id)
	if err != nil {
		return ReplayState{}, err // already oerr.NotFound
	}

	state, err := RestoreFromCheckpoint(cp)
	if err != nil {
		return ReplayState{}, err
	}

	genesis, err := log.ReplayFrom(ctx, "")
	if err != nil {
		return ReplayState{}, oerr.New(oerr.External, "load log genesis: %v", err).Wrap(err)
	}
	if len(genesis) > 0 && cp.Timestamp.Before(genesis[0].Timestamp) {
		return ReplayState{}, oerr.New(oerr.Validation,
			"checkpoint %s timestamp %s precedes log genesis %s", id, cp.Timestamp, genesis[0].Timestamp)
	}

	tail, err := log.Query(ctx, eventlog.Query{StreamID: state.ID, AfterTS: cp.Timestamp})
	if err != nil {
		return ReplayState{}, oerr.New(oerr.External, "load tail events: %v", err).Wrap(err)
	}

	next, err := ApplyEvents(state, tail)
	if err != nil {
		return ReplayState{}, err
	}

	result := ReplayState{
		CheckpointID:   id,
		Timestamp:      cp.Timestamp,
		EventsReplayed: len(tail),
		State:          next,
	}
	if len(tail) > 0 {
		result.LastEventTS = tail[len(tail)-1].Timestamp
	} else {
		result.LastEventTS = cp.Timestamp
	}
	return result, nil
}
