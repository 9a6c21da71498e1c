package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/ids"
)

// JournalKind tags a JournalEntry's variant.
type JournalKind string

const (
	JournalPhaseStarted      JournalKind = "phase_started"
	JournalPhaseCompleted    JournalKind = "phase_completed"
	JournalPhaseFailed       JournalKind = "phase_failed"
	JournalCheckpointCreated JournalKind = "checkpoint_created"
	JournalRewindInitiated   JournalKind = "rewind_initiated"
	JournalStateChanged      JournalKind = "state_changed"
)

// JournalEntry is an append-only record of workflow lifecycle, used to
// reconstruct a terminal WorkflowResult without re-executing handlers.
type JournalEntry struct {
	WorkflowID ids.WorkflowID
	Kind       JournalKind
	PhaseID    ids.PhaseID
	Timestamp  time.Time
	Detail     map[string]any
}

// Journal appends and reads JournalEntry records for a workflow.
type Journal interface {
	Append(ctx context.Context, e JournalEntry) error
	Entries(ctx context.Context, workflowID ids.WorkflowID) ([]JournalEntry, error)
}

// MemJournal is an in-memory Journal, the default for workflows whose
// history does not need to survive a restart independent of the event log.
type MemJournal struct {
	mu      sync.RWMutex
	entries map[ids.WorkflowID][]JournalEntry
}

// NewMemJournal returns an empty in-memory journal.
func NewMemJournal() *MemJournal {
	return &MemJournal{entries: make(map[ids.WorkflowID][]JournalEntry)}
}

// Append implements Journal.
func (j *MemJournal) Append(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[e.WorkflowID] = append(j.entries[e.WorkflowID], e)
	return nil
}

// Entries implements Journal.
func (j *MemJournal) Entries(_ context.Context, workflowID ids.WorkflowID) ([]JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]JournalEntry, len(j.entries[workflowID]))
	copy(out, j.entries[workflowID])
	return out, nil
}

var _ Journal = (*MemJournal)(nil)
