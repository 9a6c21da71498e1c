package supervisor

import (
	"sync"

	"github.com/beadwright/orchestrator/ids"
)

// Registry looks supervisors up by ID so that a child can hold a weak
// reference to its parent (an ids.ID) instead of a *Supervisor pointer,
// avoiding a retention cycle when the parent also tracks its children.
type Registry struct {
	mu          sync.RWMutex
	supervisors map[ids.ID]*Supervisor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{supervisors: make(map[ids.ID]*Supervisor)}
}

// Register makes a supervisor reachable by ID.
func (r *Registry) Register(s *Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supervisors[s.ID] = s
}

// Unregister drops a supervisor from the registry, typically once it has
// stopped and its failure has been propagated upward.
func (r *Registry) Unregister(id ids.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.supervisors, id)
}

// Lookup resolves a weak reference back to its Supervisor.
func (r *Registry) Lookup(id ids.ID) (*Supervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.supervisors[id]
	return s, ok
}
