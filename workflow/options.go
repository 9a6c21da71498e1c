package workflow

import (
	"time"

	"github.com/beadwright/orchestrator/emit"
)

// Option configures an Engine, following the functional-options pattern:
// chainable, self-documenting, and composable with an explicit Options
// struct for callers who prefer to build config up front.
//
//	engine, err := workflow.NewEngine(store,
//	    workflow.WithMaxConcurrent(8),
//	    workflow.WithCheckpointEnabled(true),
//	)
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
}

// Options holds the same configuration Option setters apply; it's exposed
// directly for callers who'd rather populate a struct up front (per the
// engine config shape in spec.md §6).
type Options struct {
	CheckpointEnabled bool
	RollbackOnFailure bool
	MaxConcurrent     int
	DefaultTimeout    time.Duration
	Emitter           emit.Emitter
}

func defaultOptions() Options {
	return Options{
		CheckpointEnabled: true,
		RollbackOnFailure: false,
		MaxConcurrent:     1,
		DefaultTimeout:    30 * time.Second,
		Emitter:           emit.NewNullEmitter(),
	}
}

// WithCheckpointEnabled toggles automatic checkpointing after each
// successful phase. Default: true.
func WithCheckpointEnabled(enabled bool) Option {
	return func(c *engineConfig) error {
		c.opts.CheckpointEnabled = enabled
		return nil
	}
}

// WithRollbackOnFailure makes a phase failure (after exhausting retries)
// set the workflow to Failed and stop, rather than merely reporting
// failure to the caller. Default: false.
func WithRollbackOnFailure(enabled bool) Option {
	return func(c *engineConfig) error {
		c.opts.RollbackOnFailure = enabled
		return nil
	}
}

// WithMaxConcurrent bounds the number of workflows this Engine will drive
// concurrently via golang.org/x/sync/semaphore. Phases within a single
// workflow always execute sequentially (§5); this bounds cross-workflow
// concurrency only. Default: 1.
func WithMaxConcurrent(n int) Option {
	return func(c *engineConfig) error {
		c.opts.MaxConcurrent = n
		return nil
	}
}

// WithDefaultTimeout sets the per-attempt timeout used when a Phase does
// not specify its own. Default: 30s.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *engineConfig) error {
		c.opts.DefaultTimeout = d
		return nil
	}
}

// WithEmitter attaches an event emitter for phase lifecycle telemetry.
// Default: emit.NullEmitter{}.
func WithEmitter(e emit.Emitter) Option {
	return func(c *engineConfig) error {
		c.opts.Emitter = e
		return nil
	}
}
