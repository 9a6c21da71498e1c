package main

import (
	"context"

	"github.com/beadwright/orchestrator/emit"
)

// fanoutEmitter dispatches every event to all of its backends — the
// "multi-emit" pattern emit.Emitter documents for combining a
// human-readable log stream with distributed tracing spans.
type fanoutEmitter struct {
	backends []emit.Emitter
}

func newFanoutEmitter(backends ...emit.Emitter) *fanoutEmitter {
	return &fanoutEmitter{backends: backends}
}

func (f *fanoutEmitter) Emit(event emit.Event) {
	for _, b := range f.backends {
		b.Emit(event)
	}
}

func (f *fanoutEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ emit.Emitter = (*fanoutEmitter)(nil)
