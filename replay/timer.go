package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/ids"
)

// StateProvider yields the current phase and serialized state to
// checkpoint. ok=false means the workflow has completed and the timer
// should stop itself.
type StateProvider func() (phaseID ids.PhaseID, stateBytes []byte, ok bool)

// AutoCheckpointTimer is the scheduled task described in spec.md §4.4:
// given a workflow and an interval, it periodically asks a StateProvider
// for the current state and persists it as a checkpoint, best-effort.
type AutoCheckpointTimer struct {
	store      CheckpointStore
	workflowID ids.WorkflowID
	provider   StateProvider
	emitter    emit.Emitter

	cron     *cron.Cron
	stopOnce sync.Once
}

// NewAutoCheckpointTimer constructs a timer. It does not start running
// until Start is called.
func NewAutoCheckpointTimer(store CheckpointStore, workflowID ids.WorkflowID, provider StateProvider, emitter emit.Emitter) *AutoCheckpointTimer {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return &AutoCheckpointTimer{
		store:      store,
		workflowID: workflowID,
		provider:   provider,
		emitter:    emitter,
		cron:       cron.New(),
	}
}

// everyInterval is a cron.Schedule that fires exactly d after the previous
// activation; cron's own "@every" descriptor rounds sub-second durations
// up to one second and drops fractions of a second.
type everyInterval time.Duration

// Next implements cron.Schedule.
func (d everyInterval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Start schedules the periodic checkpoint tick every interval and begins
// running it in the background. The tick runs on a cron.Cron rather than a
// raw time.Ticker so Stop can use cron's graceful-stop semantics. A
// non-positive interval is rejected.
func (t *AutoCheckpointTimer) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("auto-checkpoint interval must be positive, got %s", interval)
	}
	t.cron.Schedule(everyInterval(interval), cron.FuncJob(t.tick))
	t.cron.Start()
	return nil
}

func (t *AutoCheckpointTimer) tick() {
	phaseID, stateBytes, ok := t.provider()
	if !ok {
		go t.stopAsync()
		return
	}

	cp, err := CreateCheckpoint(phaseID, stateBytes, nil, nil)
	if err != nil {
		t.emitter.Emit(emit.Event{WorkflowID: string(t.workflowID), PhaseID: string(phaseID), Msg: "auto_checkpoint_failed", Meta: map[string]any{"error": err.Error()}})
		return
	}
	if err := t.store.Save(context.Background(), cp); err != nil {
		// Failure per §4.4 is logged and does not stop the timer.
		t.emitter.Emit(emit.Event{WorkflowID: string(t.workflowID), PhaseID: string(phaseID), Msg: "auto_checkpoint_save_failed", Meta: map[string]any{"error": err.Error()}})
		return
	}
	t.emitter.Emit(emit.Event{WorkflowID: string(t.workflowID), PhaseID: string(phaseID), Msg: "auto_checkpoint_saved"})
}

func (t *AutoCheckpointTimer) stopAsync() {
	t.stopOnce.Do(func() {
		t.cron.Stop()
	})
}

// Stop requests graceful shutdown: no further ticks fire, and Stop waits
// for any tick currently in flight to finish, up to ctx's deadline. If
// the deadline elapses first, Stop returns ctx.Err() and the in-flight
// tick is abandoned without further waiting — the forcible-abort path
// §4.4 calls for.
func (t *AutoCheckpointTimer) Stop(ctx context.Context) error {
	var stopCtx context.Context
	t.stopOnce.Do(func() {
		stopCtx = t.cron.Stop()
	})
	if stopCtx == nil {
		// Already stopped by tick() observing provider exhaustion.
		return nil
	}
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
