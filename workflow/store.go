package workflow

import (
	"context"
	"sync"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// Store persists Workflow records: their current phase index, state, and
// metadata. Separate from the event log and the checkpoint store, matching
// the Ownership rule in spec.md §3 that a Workflow is exclusively mutated
// by the Workflow Engine.
type Store interface {
	Save(ctx context.Context, w *Workflow) error
	Load(ctx context.Context, id ids.WorkflowID) (*Workflow, error)
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu        sync.RWMutex
	workflows map[ids.WorkflowID]*Workflow
}

// NewMemStore returns an empty in-memory workflow store.
func NewMemStore() *MemStore {
	return &MemStore{workflows: make(map[ids.WorkflowID]*Workflow)}
}

// Save implements Store.
func (s *MemStore) Save(_ context.Context, w *Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	cp.Phases = append([]Phase(nil), w.Phases...)
	s.workflows[w.ID] = &cp
	return nil
}

// Load implements Store.
func (s *MemStore) Load(_ context.Context, id ids.WorkflowID) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, oerr.New(oerr.NotFound, "workflow %s not found", id)
	}
	cp := *w
	cp.Phases = append([]Phase(nil), w.Phases...)
	return &cp, nil
}

var _ Store = (*MemStore)(nil)
