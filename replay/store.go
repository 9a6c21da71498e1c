package replay

import (
	"context"
	"sync"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// CheckpointStore persists and retrieves immutable Checkpoints, keyed by
// CheckpointID and, for lookup by phase, PhaseID.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, id ids.CheckpointID) (Checkpoint, error)
	LoadLatestForPhase(ctx context.Context, phaseID ids.PhaseID) (Checkpoint, error)
	// ClearAfter removes every checkpoint for beadPhases strictly after
	// targetPhaseID in the supplied phase order, used by Workflow rewind.
	ClearAfter(ctx context.Context, phaseOrder []ids.PhaseID, targetPhaseID ids.PhaseID) error
}

// MemCheckpointStore is an in-memory CheckpointStore, suitable for tests
// and for workflows that don't need checkpoints to survive a restart.
type MemCheckpointStore struct {
	mu            sync.RWMutex
	byID          map[ids.CheckpointID]Checkpoint
	latestByPhase map[ids.PhaseID]ids.CheckpointID
}

// NewMemCheckpointStore returns an empty in-memory checkpoint store.
func NewMemCheckpointStore() *MemCheckpointStore {
	return &MemCheckpointStore{
		byID:          make(map[ids.CheckpointID]Checkpoint),
		latestByPhase: make(map[ids.PhaseID]ids.CheckpointID),
	}
}

// Save implements CheckpointStore.
func (s *MemCheckpointStore) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cp.Metadata.ID] = cp
	s.latestByPhase[cp.PhaseID] = cp.Metadata.ID
	return nil
}

// Load implements CheckpointStore.
func (s *MemCheckpointStore) Load(_ context.Context, id ids.CheckpointID) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[id]
	if !ok {
		return Checkpoint{}, oerr.New(oerr.NotFound, "checkpoint %s not found", id)
	}
	return cp, nil
}

// LoadLatestForPhase implements CheckpointStore.
func (s *MemCheckpointStore) LoadLatestForPhase(ctx context.Context, phaseID ids.PhaseID) (Checkpoint, error) {
	s.mu.RLock()
	id, ok := s.latestByPhase[phaseID]
	s.mu.RUnlock()
	if !ok {
		return Checkpoint{}, oerr.New(oerr.NotFound, "no checkpoint for phase %s", phaseID)
	}
	return s.Load(ctx, id)
}

// ClearAfter implements CheckpointStore.
func (s *MemCheckpointStore) ClearAfter(_ context.Context, phaseOrder []ids.PhaseID, targetPhaseID ids.PhaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range phaseOrder {
		if p == targetPhaseID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return oerr.New(oerr.NotFound, "phase %s not in phase order", targetPhaseID)
	}
	for _, p := range phaseOrder[idx+1:] {
		if cpID, ok := s.latestByPhase[p]; ok {
			delete(s.byID, cpID)
			delete(s.latestByPhase, p)
		}
	}
	return nil
}

var _ CheckpointStore = (*MemCheckpointStore)(nil)
