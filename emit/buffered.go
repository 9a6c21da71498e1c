package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, indexed by workflow ID, and
// exposes query/filter access to them. Useful for tests and for an
// in-process "recent activity" view; not meant for long-running production
// workflows, since nothing ever evicts old entries short of Clear.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// HistoryFilter narrows GetHistoryWithFilter's results. Zero-value fields
// are unconstrained; set fields are combined with AND.
type HistoryFilter struct {
	PhaseID string
	Msg     string
	MinStep *int
	MaxStep *int
}

func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.WorkflowID] = append(b.events[event.WorkflowID], event)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.events[event.WorkflowID] = append(b.events[event.WorkflowID], event)
	}
	return nil
}

// Flush is a no-op: events are already durable in the buffer the moment
// Emit/EmitBatch returns.
func (b *BufferedEmitter) Flush(_ context.Context) error { return nil }

// GetHistory returns a copy of every event recorded for workflowID, in
// emission order.
func (b *BufferedEmitter) GetHistory(workflowID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[workflowID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// GetHistoryWithFilter returns a copy of the events for workflowID that
// match every set field of filter.
func (b *BufferedEmitter) GetHistoryWithFilter(workflowID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[workflowID]))
	for _, event := range b.events[workflowID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.PhaseID != "" && event.PhaseID != filter.PhaseID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinStep != nil && event.Step < *filter.MinStep {
		return false
	}
	if filter.MaxStep != nil && event.Step > *filter.MaxStep {
		return false
	}
	return true
}

// Clear drops events for workflowID, or every workflow if workflowID is
// empty.
func (b *BufferedEmitter) Clear(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if workflowID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, workflowID)
}

var _ Emitter = (*BufferedEmitter)(nil)
