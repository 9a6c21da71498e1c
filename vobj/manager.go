package vobj

import (
	"context"
	"sync"

	"github.com/beadwright/orchestrator/ids"
)

// Manager owns the set of live virtual objects, guaranteeing that
// get_or_create is idempotent per id: the object is owned by exactly one
// Manager, matching the Ownership rule in spec.md §3.
type Manager struct {
	config Config
	store  Store

	mu      sync.Mutex
	objects map[ids.ID]*Object
}

// NewManager returns an in-memory-only Manager; objects are never
// persisted regardless of config.PersistState.
func NewManager(config Config) *Manager {
	return &Manager{config: config, objects: make(map[ids.ID]*Object)}
}

// NewManagerWithStore returns a Manager whose objects persist state
// through store.
func NewManagerWithStore(config Config, store Store) *Manager {
	return &Manager{config: config, store: store, objects: make(map[ids.ID]*Object)}
}

// GetOrCreate returns the live object for id, constructing and
// initializing it on first access. handler is only consulted on that
// first access; subsequent calls with a different handler for the same id
// still return the original instance.
func (m *Manager) GetOrCreate(ctx context.Context, id ids.ID, handler Handler) (*Object, error) {
	m.mu.Lock()
	if obj, ok := m.objects[id]; ok {
		m.mu.Unlock()
		return obj, nil
	}
	m.mu.Unlock()

	var obj *Object
	if m.store != nil {
		obj = NewWithStore(id, m.config, handler, m.store)
	} else {
		obj = New(id, m.config, handler)
	}
	if err := obj.Init(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.objects[id]; ok {
		m.mu.Unlock()
		obj.Destroy(ctx)
		return existing, nil
	}
	m.objects[id] = obj
	m.mu.Unlock()
	return obj, nil
}

// Get returns the live object for id without creating one.
func (m *Manager) Get(id ids.ID) (*Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[id]
	return obj, ok
}

// Remove runs the object's OnDestroy hook and drops it from the manager.
// Reports false if no object was registered under id.
func (m *Manager) Remove(ctx context.Context, id ids.ID) bool {
	m.mu.Lock()
	obj, ok := m.objects[id]
	if ok {
		delete(m.objects, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	obj.Destroy(ctx)
	return true
}

// Count returns the number of live objects.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
