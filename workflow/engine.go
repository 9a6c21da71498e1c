package workflow

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
	"github.com/beadwright/orchestrator/replay"
)

// Engine drives Workflow execution: phase sequencing, retries, timeouts,
// journaled execution, rewind and resume.
type Engine struct {
	store       Store
	journal     Journal
	checkpoints replay.CheckpointStore
	cfg         Options
	sem         *semaphore.Weighted
}

// NewEngine constructs an Engine backed by store, applying any Options.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	cfg := engineConfig{opts: defaultOptions()}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.opts.MaxConcurrent < 1 {
		return nil, oerr.New(oerr.Validation, "max_concurrent must be >= 1")
	}

	return &Engine{
		store:       store,
		journal:     NewMemJournal(),
		checkpoints: replay.NewMemCheckpointStore(),
		cfg:         cfg.opts,
		sem:         semaphore.NewWeighted(int64(cfg.opts.MaxConcurrent)),
	}, nil
}

// WithJournal overrides the Engine's default in-memory Journal, used by
// callers wiring a durable journal backend.
func (e *Engine) WithJournal(j Journal) *Engine {
	e.journal = j
	return e
}

// WithCheckpointStore overrides the Engine's default in-memory checkpoint
// store.
func (e *Engine) WithCheckpointStore(cs replay.CheckpointStore) *Engine {
	e.checkpoints = cs
	return e
}

func (e *Engine) emit(ev emit.Event) {
	e.cfg.Emitter.Emit(ev)
}

// Run executes workflow w from Pending to a terminal state, driving phase
// handlers in order per §4.3.
func (e *Engine) Run(ctx context.Context, w *Workflow, handlers map[string]Handler) (WorkflowResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return WorkflowResult{}, oerr.New(oerr.Timeout, "acquire workflow slot: %v", err).Wrap(err)
	}
	defer e.sem.Release(1)

	if !CanTransition(w.State, Running) {
		return WorkflowResult{}, oerr.New(oerr.InvalidState, "cannot run workflow in state %s", w.State)
	}
	w.State = Running
	w.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, w); err != nil {
		return WorkflowResult{}, err
	}

	result := WorkflowResult{WorkflowID: w.ID, State: Running}

	for w.CurrentPhaseIndex < len(w.Phases) {
		phase, ok := w.currentPhase()
		if !ok {
			break
		}
		handler, ok := handlers[phase.Name]
		if !ok {
			return e.fail(ctx, w, result, oerr.New(oerr.Validation, "no handler registered for phase %q", phase.Name))
		}

		e.appendJournal(ctx, w.ID, JournalPhaseStarted, phase.ID, nil)
		e.emit(emit.Event{WorkflowID: w.ID.String(), PhaseID: phase.ID.String(), Msg: "phase_started"})

		hr, err := e.runPhaseWithRetries(ctx, w, phase, handler)
		if err != nil {
			e.appendJournal(ctx, w.ID, JournalPhaseFailed, phase.ID, map[string]any{"error": err.Error(), "attempt": hr.Attempt})
			e.emit(emit.Event{WorkflowID: w.ID.String(), PhaseID: phase.ID.String(), Msg: "phase_failed",
				Meta: map[string]any{"error": err.Error(), "attempt": hr.Attempt}})

			if e.cfg.RollbackOnFailure {
				return e.fail(ctx, w, result, err)
			}
			result.Outputs = append(result.Outputs, hr)
			result.Err = err
			w.State = Failed
			_ = e.store.Save(ctx, w)
			return result, err
		}

		result.Outputs = append(result.Outputs, hr)
		e.appendJournal(ctx, w.ID, JournalPhaseCompleted, phase.ID, map[string]any{"duration_ms": hr.DurationMs, "attempt": hr.Attempt})
		e.emit(emit.Event{WorkflowID: w.ID.String(), PhaseID: phase.ID.String(), Msg: "phase_completed",
			Meta: map[string]any{"duration_ms": hr.DurationMs, "attempt": hr.Attempt}})

		if e.cfg.CheckpointEnabled {
			if _, err := e.checkpointPhase(ctx, w, phase); err != nil {
				return WorkflowResult{}, err
			}
		}

		w.CurrentPhaseIndex++
		w.UpdatedAt = time.Now().UTC()
		if err := e.store.Save(ctx, w); err != nil {
			return WorkflowResult{}, err
		}
	}

	w.State = Completed
	w.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, w); err != nil {
		return WorkflowResult{}, err
	}
	result.State = Completed
	return result, nil
}

func (e *Engine) fail(ctx context.Context, w *Workflow, result WorkflowResult, err error) (WorkflowResult, error) {
	w.State = Failed
	w.UpdatedAt = time.Now().UTC()
	_ = e.store.Save(ctx, w)
	result.State = Failed
	result.Err = err
	return result, err
}

// runPhaseWithRetries dispatches phase up to phase.Retries+1 times,
// enforcing phase.Timeout (or the Engine default) as a hard per-attempt
// cap.
func (e *Engine) runPhaseWithRetries(ctx context.Context, w *Workflow, phase Phase, handler Handler) (HandlerResult, error) {
	timeout := phase.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	var lastErr error
	var lastResult HandlerResult
	maxAttempts := phase.Retries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		hr := dispatch(attemptCtx, handler, w, phase, attempt)
		cancel()

		if hr.Err == nil && hr.Success {
			return hr, nil
		}
		lastErr = hr.Err
		if lastErr == nil {
			lastErr = oerr.New(oerr.External, "phase %q reported failure: %s", phase.Name, hr.Message)
		}
		if attemptCtx.Err() != nil {
			lastErr = oerr.New(oerr.Timeout, "phase %q attempt %d exceeded timeout %s", phase.Name, attempt, timeout)
		}
		lastResult = hr
	}
	return lastResult, lastErr
}

// dispatch is split out from runPhaseWithRetries purely so the per-attempt
// timing and deadline wiring is in one place.
func dispatch(ctx context.Context, h Handler, w *Workflow, phase Phase, attempt int) HandlerResult {
	start := time.Now()
	hr := h(PhaseContextWithDeadline{
		PhaseContext: PhaseContext{
			WorkflowID: w.ID,
			Phase:      phase,
			Attempt:    attempt,
		},
		Done: ctx.Done(),
	})
	if hr.DurationMs == 0 {
		hr.DurationMs = time.Since(start).Milliseconds()
	}
	hr.Attempt = attempt
	return hr
}

// checkpointPhase creates and persists a checkpoint at the given phase
// without advancing CurrentPhaseIndex; shared by automatic per-phase
// checkpointing in Run and the manual Checkpoint operation.
func (e *Engine) checkpointPhase(ctx context.Context, w *Workflow, phase Phase) (replay.Checkpoint, error) {
	cp, err := replay.CreateCheckpoint(phase.ID, *w, nil, nil)
	if err != nil {
		return replay.Checkpoint{}, err
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		return replay.Checkpoint{}, err
	}
	e.appendJournal(ctx, w.ID, JournalCheckpointCreated, phase.ID, map[string]any{
		"checkpoint_id": cp.Metadata.ID.String(),
	})
	e.emit(emit.Event{WorkflowID: w.ID.String(), PhaseID: phase.ID.String(), Msg: "checkpoint_created",
		Meta: map[string]any{"checkpoint_id": cp.Metadata.ID.String(), "ratio": cp.Metadata.Ratio}})
	return cp, nil
}

// Checkpoint creates a manual snapshot at the workflow's current phase
// without advancing it.
func (e *Engine) Checkpoint(ctx context.Context, workflowID ids.WorkflowID) (replay.Checkpoint, error) {
	w, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return replay.Checkpoint{}, err
	}
	phase, ok := w.currentPhase()
	if !ok {
		return replay.Checkpoint{}, oerr.New(oerr.InvalidState, "workflow %s has no current phase to checkpoint", workflowID)
	}
	return e.checkpointPhase(ctx, w, phase)
}

// Rewind resets workflow to targetPhaseID: it must have a checkpoint, and
// every checkpoint strictly after it is cleared.
func (e *Engine) Rewind(ctx context.Context, workflowID ids.WorkflowID, targetPhaseID ids.PhaseID) error {
	w, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return err
	}

	if _, err := e.checkpoints.LoadLatestForPhase(ctx, targetPhaseID); err != nil {
		return err // already oerr.NotFound
	}

	targetIdx := -1
	order := make([]ids.PhaseID, len(w.Phases))
	for i, p := range w.Phases {
		order[i] = p.ID
		if p.ID == targetPhaseID {
			targetIdx = i
		}
	}
	if targetIdx == -1 {
		return oerr.New(oerr.NotFound, "phase %s not part of workflow %s", targetPhaseID, workflowID)
	}

	if err := e.checkpoints.ClearAfter(ctx, order, targetPhaseID); err != nil {
		return err
	}

	w.CurrentPhaseIndex = targetIdx
	w.State = Paused
	w.UpdatedAt = time.Now().UTC()
	if err := e.store.Save(ctx, w); err != nil {
		return err
	}

	e.appendJournal(ctx, workflowID, JournalRewindInitiated, targetPhaseID, nil)
	e.emit(emit.Event{WorkflowID: workflowID.String(), PhaseID: targetPhaseID.String(), Msg: "rewind_initiated"})
	return nil
}

// Resume continues a Paused workflow from CurrentPhaseIndex.
func (e *Engine) Resume(ctx context.Context, workflowID ids.WorkflowID, handlers map[string]Handler) (WorkflowResult, error) {
	w, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return WorkflowResult{}, err
	}
	if w.State != Paused {
		return WorkflowResult{}, oerr.New(oerr.InvalidState, "resume requires state=paused, got %s", w.State)
	}
	w.State = Pending // let Run's CanTransition(Pending, Running) check pass
	return e.Run(ctx, w, handlers)
}

// Replay reconstructs the terminal WorkflowResult from the journal without
// re-executing handlers.
func (e *Engine) Replay(ctx context.Context, workflowID ids.WorkflowID) (WorkflowResult, error) {
	w, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return WorkflowResult{}, err
	}
	entries, err := e.journal.Entries(ctx, workflowID)
	if err != nil {
		return WorkflowResult{}, err
	}

	result := WorkflowResult{WorkflowID: workflowID, State: w.State}
	for _, entry := range entries {
		switch entry.Kind {
		case JournalPhaseCompleted:
			durationMs, _ := entry.Detail["duration_ms"].(int64)
			result.Outputs = append(result.Outputs, HandlerResult{Success: true, DurationMs: durationMs})
		case JournalPhaseFailed:
			msg, _ := entry.Detail["error"].(string)
			result.Err = oerr.New(oerr.External, "%s", msg)
		}
	}
	return result, nil
}

func (e *Engine) appendJournal(ctx context.Context, workflowID ids.WorkflowID, kind JournalKind, phaseID ids.PhaseID, detail map[string]any) {
	_ = e.journal.Append(ctx, JournalEntry{
		WorkflowID: workflowID,
		Kind:       kind,
		PhaseID:    phaseID,
		Timestamp:  time.Now().UTC(),
		Detail:     detail,
	})
}
