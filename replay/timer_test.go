package replay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/ids"
)

func TestAutoCheckpointTimer_PersistsOnEachTick(t *testing.T) {
	store := NewMemCheckpointStore()
	phaseID := ids.New()
	var calls int32

	provider := func() (ids.PhaseID, []byte, bool) {
		atomic.AddInt32(&calls, 1)
		return phaseID, []byte("state"), true
	}

	timer := NewAutoCheckpointTimer(store, ids.New(), provider, nil)
	require.NoError(t, timer.Start(20 * time.Millisecond))
	defer timer.Stop(context.Background())

	require.Eventually(t, func() bool {
		_, err := store.LoadLatestForPhase(context.Background(), phaseID)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 10*time.Millisecond, "timer should keep ticking")
}

func TestAutoCheckpointTimer_StopsWhenProviderExhausted(t *testing.T) {
	store := NewMemCheckpointStore()
	phaseID := ids.New()
	var calls int32

	provider := func() (ids.PhaseID, []byte, bool) {
		n := atomic.AddInt32(&calls, 1)
		if n > 1 {
			return "", nil, false
		}
		return phaseID, []byte("state"), true
	}

	timer := NewAutoCheckpointTimer(store, ids.New(), provider, nil)
	require.NoError(t, timer.Start(15 * time.Millisecond))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, time.Second, 10*time.Millisecond)

	settled := atomic.LoadInt32(&calls)
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&calls), settled+1, "timer should have stopped ticking once the provider reported completion")
}

func TestAutoCheckpointTimer_StopRespectsDeadline(t *testing.T) {
	store := NewMemCheckpointStore()
	provider := func() (ids.PhaseID, []byte, bool) {
		return ids.New(), []byte("x"), true
	}

	timer := NewAutoCheckpointTimer(store, ids.New(), provider, nil)
	require.NoError(t, timer.Start(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, timer.Stop(ctx))
}
