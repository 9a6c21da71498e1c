package eventlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// MemLog is an in-memory Log implementation.
//
// Designed for:
//   - Unit tests that don't need real durability
//   - Short-lived workflows where persistence isn't required
//
// MemLog is thread-safe. "fsync" is simulated: AppendEvent only returns
// once the event has been appended under the write lock, which is the
// in-memory analogue of "durable" for this backend's purposes.
//
// Limitations: data is lost when the process terminates; there is no
// crash-recovery story because there is nothing to recover from.
type MemLog struct {
	mu     sync.RWMutex
	events []bead.Event       // append order, global
	byBead map[ids.BeadID][]int // bead ID -> indices into events
}

// NewMemLog creates an empty in-memory log.
func NewMemLog() *MemLog {
	return &MemLog{
		byBead: make(map[ids.BeadID][]int),
	}
}

// AppendEvent implements Log.
func (m *MemLog) AppendEvent(_ context.Context, e bead.Event) (ids.EventID, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID.IsZero() {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	m.events = append(m.events, e)
	m.byBead[e.BeadID] = append(m.byBead[e.BeadID], len(m.events)-1)
	return e.ID, nil
}

// ReadEvents implements Log.
func (m *MemLog) ReadEvents(_ context.Context, beadID ids.BeadID) ([]bead.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.byBead[beadID]
	out := make([]bead.Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.events[i])
	}
	return out, nil
}

// ReplayFrom implements Log.
func (m *MemLog) ReplayFrom(_ context.Context, afterID ids.EventID) ([]bead.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if afterID.IsZero() {
		out := make([]bead.Event, len(m.events))
		copy(out, m.events)
		return out, nil
	}

	// event_id is a strict monotone function of append order (§5), so the
	// boundary can be found by simple string comparison against ID rather
	// than a linear scan for equality.
	start := sort.Search(len(m.events), func(i int) bool {
		return m.events[i].ID > afterID
	})
	out := make([]bead.Event, len(m.events)-start)
	copy(out, m.events[start:])
	return out, nil
}

// LastEventID implements Log.
func (m *MemLog) LastEventID(_ context.Context) (ids.EventID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return "", nil
	}
	return m.events[len(m.events)-1].ID, nil
}

// Query implements Log.
func (m *MemLog) Query(_ context.Context, q Query) ([]bead.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]bead.Event, 0)
	for _, e := range m.events {
		if matches(e, q) {
			out = append(out, e)
		}
	}
	return applyLimit(out, q.Limit), nil
}

// Close implements Log; a no-op for the in-memory backend.
func (m *MemLog) Close() error { return nil }

var _ Log = (*MemLog)(nil)

// errClosed is returned by operations on a closed backend that does have a
// real handle to release (e.g. SQLiteLog), kept here since every backend
// shares the same "use after close" failure mode.
var errClosed = oerr.New(oerr.Durability, "event log is closed")
