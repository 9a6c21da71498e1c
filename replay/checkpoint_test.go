package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
)

func TestCheckpoint_RoundTrip(t *testing.T) {
	state := bead.Aggregate{
		ID:    ids.New(),
		Spec:  bead.Spec{Title: "deploy", Complexity: bead.Complex},
		State: bead.Running,
		Phases: []bead.PhaseRecord{
			{PhaseID: ids.New(), PhaseName: "build", Output: bead.PhaseOutput{Success: true}},
		},
		CreatedAt: time.Now().UTC(),
	}

	cp, err := CreateCheckpoint(ids.New(), state, []byte("in"), []byte("out"))
	require.NoError(t, err)
	require.Equal(t, CheckpointVersion, cp.Metadata.Version)
	require.Positive(t, cp.Metadata.UncompressedSize)

	restored, err := RestoreFromCheckpoint(cp)
	require.NoError(t, err)
	require.Equal(t, state.ID, restored.ID)
	require.Equal(t, state.Spec, restored.Spec)
	require.Equal(t, state.State, restored.State)
	require.Len(t, restored.Phases, 1)
}

func TestCheckpoint_UncompressedSizeMismatchRejected(t *testing.T) {
	cp, err := CreateCheckpoint(ids.New(), bead.Aggregate{ID: ids.New()}, nil, nil)
	require.NoError(t, err)

	cp.Metadata.UncompressedSize += 1 // corrupt the self-describing size
	_, err = RestoreFromCheckpoint(cp)
	require.Error(t, err)
}
