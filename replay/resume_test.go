package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/eventlog"
	"github.com/beadwright/orchestrator/ids"
)

func TestResume_RebuildsFromCheckpointPlusTail(t *testing.T) {
	ctx := context.Background()
	log := eventlog.NewMemLog()
	checkpoints := NewMemCheckpointStore()
	beadID := ids.New()
	base := time.Now().UTC()

	created := bead.Event{
		BeadID: beadID, Kind: bead.EventCreated, Timestamp: base,
		Spec: bead.Spec{Title: "pipeline", Complexity: bead.Medium},
	}
	_, err := log.AppendEvent(ctx, created)
	require.NoError(t, err)

	toScheduled := bead.Event{
		BeadID: beadID, Kind: bead.EventStateChanged, Timestamp: base.Add(time.Millisecond),
		From: bead.Pending, To: bead.Scheduled,
	}
	_, err = log.AppendEvent(ctx, toScheduled)
	require.NoError(t, err)

	state, err := ApplyEvents(bead.Aggregate{}, []bead.Event{created, toScheduled})
	require.NoError(t, err)

	cp, err := CreateCheckpoint(ids.New(), state, nil, nil)
	require.NoError(t, err)
	cp.Timestamp = base.Add(time.Millisecond)
	require.NoError(t, checkpoints.Save(ctx, cp))

	toReady := bead.Event{
		BeadID: beadID, Kind: bead.EventStateChanged, Timestamp: base.Add(2 * time.Millisecond),
		From: bead.Scheduled, To: bead.Ready,
	}
	_, err = log.AppendEvent(ctx, toReady)
	require.NoError(t, err)

	result, err := Resume(ctx, cp.Metadata.ID, checkpoints, log)
	require.NoError(t, err)
	require.Equal(t, 1, result.EventsReplayed)
	require.Equal(t, bead.Ready, result.State.State)
}

func TestResume_UnknownCheckpointNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Resume(ctx, ids.New(), NewMemCheckpointStore(), eventlog.NewMemLog())
	require.Error(t, err)
}
