package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/metrics"
	"github.com/beadwright/orchestrator/oerr"

	_ "modernc.org/sqlite"
)

// SQLiteLog is a SQLite-backed Log.
//
// SQLite's own WAL file is the "WAL sidecar" described in §4.1: it is used
// only during the crash window between a write and the database's own
// checkpoint of that write into the main file. journal_mode=WAL plus
// synchronous=FULL means AppendEvent's underlying INSERT does not return
// until the write is fsynced to the WAL file, which is exactly the
// append-path contract ("write to WAL file -> fsync -> commit row").
// Recovery on restart is handled by SQLite itself: opening the database
// replays or discards the WAL's own trailing bytes before any query can
// observe the table, so there is no separate recovery step to implement
// here — the invariant in §8 ("every event for which append_event returned
// success is visible after restart") is exactly what SQLite's WAL+fsync
// contract provides.
//
// Schema mirrors §6's wire layout: event_id (sortable string) as primary
// key, bead_id secondary index, event_type tag, JSON payload, and the
// timestamp stored both as RFC3339Nano text and as integer nanoseconds
// (ts_ns, indexed, used for time-range filters).
type SQLiteLog struct {
	db      *sql.DB
	mu      sync.Mutex // serializes appends (§5: single writer lock)
	closed  bool
	metrics *metrics.Metrics
	backend string
}

// WithMetrics attaches a Metrics collector; every AppendEvent call after
// this reports its duration (including the WAL fsync) under backend's
// label. m may be nil.
func (l *SQLiteLog) WithMetrics(m *metrics.Metrics, backend string) *SQLiteLog {
	l.metrics = m
	l.backend = backend
	return l
}

// NewSQLiteLog opens (creating if necessary) a SQLite-backed event log at
// path. Use ":memory:" for a process-local, non-durable instance in tests.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite event log: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite event log (%s): %w", pragma, err)
		}
	}

	l := &SQLiteLog{db: db, backend: "sqlite"}
	if err := l.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) createSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS bead_events (
			event_id TEXT PRIMARY KEY,
			bead_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			ts_ns INTEGER NOT NULL
		)
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create bead_events table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_bead_events_bead_id ON bead_events(bead_id, event_id)"); err != nil {
		return fmt.Errorf("create bead_id index: %w", err)
	}
	if _, err := l.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_bead_events_ts_ns ON bead_events(ts_ns)"); err != nil {
		return fmt.Errorf("create ts_ns index: %w", err)
	}
	return nil
}

// payload is the JSON-serializable view of a bead.Event's variant fields,
// used for the payload column so the schema doesn't need one column per
// variant.
type payload struct {
	Spec         bead.Spec            `json:"spec,omitempty"`
	From         bead.State           `json:"from,omitempty"`
	To           bead.State           `json:"to,omitempty"`
	PhaseID      ids.PhaseID          `json:"phase_id,omitempty"`
	PhaseName    string               `json:"phase_name,omitempty"`
	Output       bead.PhaseOutput     `json:"output,omitempty"`
	Result       bead.Result          `json:"result,omitempty"`
	Error        bead.ErrorInfo       `json:"error,omitempty"`
	AgentID      string               `json:"agent_id,omitempty"`
	TargetBeadID ids.BeadID           `json:"target_bead_id,omitempty"`
	RelationType string               `json:"relation_type,omitempty"`
	EdgeMetadata map[string]string    `json:"edge_metadata,omitempty"`
}

func toPayload(e bead.Event) payload {
	return payload{
		Spec: e.Spec, From: e.From, To: e.To,
		PhaseID: e.PhaseID, PhaseName: e.PhaseName, Output: e.Output,
		Result: e.Result, Error: e.Error, AgentID: e.AgentID,
		TargetBeadID: e.TargetBeadID, RelationType: e.RelationType,
		EdgeMetadata: e.EdgeMetadata,
	}
}

func fromRow(eventID, beadID, eventType, rawPayload, ts string) (bead.Event, error) {
	var p payload
	if err := json.Unmarshal([]byte(rawPayload), &p); err != nil {
		return bead.Event{}, oerr.New(oerr.Durability, "decode event payload %s: %v", eventID, err)
	}
	parsedTS, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return bead.Event{}, oerr.New(oerr.Durability, "decode event timestamp %s: %v", eventID, err)
	}
	return bead.Event{
		ID: ids.ID(eventID), BeadID: ids.ID(beadID), Kind: bead.EventKind(eventType),
		Timestamp: parsedTS, Spec: p.Spec, From: p.From, To: p.To,
		PhaseID: p.PhaseID, PhaseName: p.PhaseName, Output: p.Output,
		Result: p.Result, Error: p.Error, AgentID: p.AgentID,
		TargetBeadID: p.TargetBeadID, RelationType: p.RelationType,
		EdgeMetadata: p.EdgeMetadata,
	}, nil
}

// AppendEvent implements Log.
func (l *SQLiteLog) AppendEvent(ctx context.Context, e bead.Event) (ids.EventID, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	id, err := l.appendEvent(ctx, e)
	l.metrics.RecordEventLogAppend(l.backend, time.Since(start), err)
	return id, err
}

func (l *SQLiteLog) appendEvent(ctx context.Context, e bead.Event) (ids.EventID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", errClosed
	}
	if e.ID.IsZero() {
		e.ID = ids.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	raw, err := json.Marshal(toPayload(e))
	if err != nil {
		return "", oerr.New(oerr.Durability, "serialize event: %v", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO bead_events (event_id, bead_id, event_type, payload, timestamp, ts_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.BeadID.String(), string(e.Kind), raw, e.Timestamp.Format(time.RFC3339Nano), e.Timestamp.UnixNano())
	if err != nil {
		return "", oerr.New(oerr.Durability, "append event: %v", err).Wrap(err)
	}
	return e.ID, nil
}

// ReadEvents implements Log.
func (l *SQLiteLog) ReadEvents(ctx context.Context, beadID ids.BeadID) ([]bead.Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT event_id, bead_id, event_type, payload, timestamp FROM bead_events WHERE bead_id = ? ORDER BY event_id ASC`,
		beadID.String())
	if err != nil {
		return nil, oerr.New(oerr.External, "read events: %v", err).Wrap(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReplayFrom implements Log.
func (l *SQLiteLog) ReplayFrom(ctx context.Context, afterID ids.EventID) ([]bead.Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT event_id, bead_id, event_type, payload, timestamp FROM bead_events WHERE event_id > ? ORDER BY event_id ASC`,
		afterID.String())
	if err != nil {
		return nil, oerr.New(oerr.External, "replay events: %v", err).Wrap(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LastEventID implements Log.
func (l *SQLiteLog) LastEventID(ctx context.Context) (ids.EventID, error) {
	row := l.db.QueryRowContext(ctx, `SELECT event_id FROM bead_events ORDER BY event_id DESC LIMIT 1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", oerr.New(oerr.External, "last event id: %v", err).Wrap(err)
	}
	return ids.ID(id), nil
}

// Query implements Log.
func (l *SQLiteLog) Query(ctx context.Context, q Query) ([]bead.Event, error) {
	where := "1=1"
	args := []any{}
	if !q.StreamID.IsZero() {
		where += " AND bead_id = ?"
		args = append(args, q.StreamID.String())
	}
	if q.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, string(q.EventType))
	}
	if !q.AfterTS.IsZero() {
		// Compared as an integer column (ts_ns), not the variable-width
		// RFC3339Nano text column: that text sorts lexicographically, so
		// e.g. "...00Z" (no fractional seconds) would compare greater
		// than "...00.5Z" even though the latter is the later instant.
		where += " AND ts_ns > ?"
		args = append(args, q.AfterTS.UnixNano())
	}
	if !q.BeforeTS.IsZero() {
		where += " AND ts_ns < ?"
		args = append(args, q.BeforeTS.UnixNano())
	}
	stmt := fmt.Sprintf(`SELECT event_id, bead_id, event_type, payload, timestamp FROM bead_events WHERE %s ORDER BY event_id ASC`, where)
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := l.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, oerr.New(oerr.External, "query events: %v", err).Wrap(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]bead.Event, error) {
	out := make([]bead.Event, 0)
	for rows.Next() {
		var eventID, beadID, eventType, rawPayload, ts string
		if err := rows.Scan(&eventID, &beadID, &eventType, &rawPayload, &ts); err != nil {
			return nil, oerr.New(oerr.External, "scan event row: %v", err).Wrap(err)
		}
		e, err := fromRow(eventID, beadID, eventType, rawPayload, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Log.
func (l *SQLiteLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

var _ Log = (*SQLiteLog)(nil)
