// Package shutdown coordinates graceful orchestrator shutdown: broadcasting
// a shutdown signal to subscribers, collecting their checkpoint-save
// results within a bounded window, and reporting the overall outcome.
package shutdown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beadwright/orchestrator/emit"
	"github.com/beadwright/orchestrator/oerr"
)

// Signal identifies what triggered a shutdown.
type Signal int

const (
	SIGTERM Signal = iota
	SIGINT
	Programmatic
)

// String implements fmt.Stringer.
func (s Signal) String() string {
	switch s {
	case SIGTERM:
		return "SIGTERM"
	case SIGINT:
		return "SIGINT"
	case Programmatic:
		return "PROGRAMMATIC"
	default:
		return "UNKNOWN"
	}
}

// Phase is a coordinator's position in the shutdown sequence.
type Phase int

const (
	Running Phase = iota
	Initiating
	SavingCheckpoints
	StoppingActors
	Complete
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Initiating:
		return "initiating"
	case SavingCheckpoints:
		return "saving_checkpoints"
	case StoppingActors:
		return "stopping_actors"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// CheckpointResult is reported by a subscriber once it has saved (or
// failed to save) its state during the SavingCheckpoints phase.
type CheckpointResult struct {
	Component  string
	Success    bool
	DurationMS int64
	Error      string
}

// CheckpointSuccess builds a successful CheckpointResult.
func CheckpointSuccess(component string, durationMS int64) CheckpointResult {
	return CheckpointResult{Component: component, Success: true, DurationMS: durationMS}
}

// CheckpointFailure builds a failed CheckpointResult.
func CheckpointFailure(component, errMsg string) CheckpointResult {
	return CheckpointResult{Component: component, Success: false, Error: errMsg}
}

// Stats summarizes a completed shutdown sequence.
type Stats struct {
	CheckpointsSaved  int
	CheckpointsFailed int
	CheckpointError   string
	TotalDurationMS   int64
}

const (
	// shutdownTimeout is the hard overall deadline per spec.md §4.11.
	shutdownTimeout = 30 * time.Second
	// checkpointTimeout leaves a 5s buffer under the overall deadline for
	// the StoppingActors and Complete phases.
	checkpointTimeout = 25 * time.Second
)

// Coordinator drives the Running -> Initiating -> SavingCheckpoints ->
// StoppingActors -> Complete sequence exactly once: a second call to
// Initiate after the first is a no-op.
type Coordinator struct {
	emitter emit.Emitter

	initiated atomic.Bool

	mu          sync.Mutex
	phase       Phase
	subscribers []chan Signal

	checkpoints         chan CheckpointResult
	expectedCheckpoints int
}

// New returns a Coordinator in the Running phase.
func New(emitter emit.Emitter) *Coordinator {
	return &Coordinator{
		emitter:     emitter,
		phase:       Running,
		checkpoints: make(chan CheckpointResult, 32),
	}
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// IsInitiated reports whether a shutdown has already been requested.
func (c *Coordinator) IsInitiated() bool {
	return c.initiated.Load()
}

// Subscribe registers interest in shutdown signals. Callers should drain
// the returned channel in a goroutine and, on receipt, begin saving state
// and reporting results via CheckpointSender.
func (c *Coordinator) Subscribe() <-chan Signal {
	ch := make(chan Signal, 1)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// CheckpointSender returns the channel subscribers use to report
// CheckpointResults back to the coordinator during SavingCheckpoints.
func (c *Coordinator) CheckpointSender() chan<- CheckpointResult {
	return c.checkpoints
}

// Initiate broadcasts signal to every subscriber. A duplicate call after
// the first (regardless of signal) is ignored, matching the single-shot
// contract in spec.md §4.11.
func (c *Coordinator) Initiate(signal Signal) {
	if !c.initiated.CompareAndSwap(false, true) {
		return
	}

	c.setPhase(Initiating)

	c.mu.Lock()
	subs := c.subscribers
	c.expectedCheckpoints = len(subs)
	c.mu.Unlock()

	c.emit("shutdown_initiated", map[string]interface{}{"signal": signal.String(), "subscribers": len(subs)})

	for _, sub := range subs {
		select {
		case sub <- signal:
		default:
			// Subscriber's buffer is full; it already has a signal queued.
		}
	}
}

// Run executes the SavingCheckpoints -> StoppingActors -> Complete
// sequence and returns its stats, or an error if the overall deadline is
// exceeded. stopActors, if non-nil, runs during StoppingActors.
func (c *Coordinator) Run(ctx context.Context, stopActors func(context.Context) error) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)

	go func() {
		start := time.Now()
		var stats Stats

		c.setPhase(SavingCheckpoints)
		saved, failed, checkpointErr := c.collectCheckpoints(ctx)
		stats.CheckpointsSaved = saved
		stats.CheckpointsFailed = failed
		stats.CheckpointError = checkpointErr

		c.setPhase(StoppingActors)
		if stopActors != nil {
			if err := stopActors(ctx); err != nil {
				c.emit("shutdown_stop_actors_failed", map[string]interface{}{"error": err.Error()})
			}
		}

		c.setPhase(Complete)
		stats.TotalDurationMS = time.Since(start).Milliseconds()
		c.emit("shutdown_complete", map[string]interface{}{"duration_ms": stats.TotalDurationMS})
		done <- result{stats: stats, err: nil}
	}()

	select {
	case r := <-done:
		return r.stats, r.err
	case <-ctx.Done():
		return Stats{}, oerr.New(oerr.Timeout, "shutdown timeout exceeded: %s", shutdownTimeout).
			Wrap(ctx.Err())
	}
}

// collectCheckpoints drains CheckpointResults until every subscriber that
// existed at Initiate time has reported, checkpointTimeout elapses, or the
// outer context is cancelled, whichever comes first.
func (c *Coordinator) collectCheckpoints(ctx context.Context) (saved, failed int, errMsg string) {
	c.mu.Lock()
	expected := c.expectedCheckpoints
	c.mu.Unlock()
	if expected == 0 {
		return 0, 0, ""
	}

	deadline, cancel := context.WithTimeout(ctx, checkpointTimeout)
	defer cancel()

	for received := 0; received < expected; {
		select {
		case r := <-c.checkpoints:
			received++
			if r.Success {
				saved++
			} else {
				failed++
			}
			c.emit("checkpoint_result", map[string]interface{}{
				"component": r.Component, "success": r.Success, "duration_ms": r.DurationMS,
			})
		case <-deadline.Done():
			return saved, failed, ""
		}
	}
	return saved, failed, ""
}

func (c *Coordinator) emit(msg string, meta map[string]interface{}) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(emit.Event{Msg: msg, Meta: meta})
}
