package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/oerr"

	_ "github.com/go-sql-driver/mysql"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/metrics"
)

// MySQLLog is a MySQL/MariaDB-backed Log, for deployments that already run
// a MySQL cluster and want the Event Log to share it rather than run a
// separate SQLite file per node. Grounded on the teacher's MySQLStore
// connection-pool and schema-on-open conventions, adapted to the bead_events
// shape SQLiteLog already defines.
type MySQLLog struct {
	db      *sql.DB
	mu      sync.Mutex
	closed  bool
	metrics *metrics.Metrics
	backend string
}

// WithMetrics attaches a Metrics collector; every AppendEvent call after
// this reports its duration under backend's label. m may be nil.
func (l *MySQLLog) WithMetrics(m *metrics.Metrics, backend string) *MySQLLog {
	l.metrics = m
	l.backend = backend
	return l
}

// NewMySQLLog opens a MySQL-backed event log using dsn (see
// go-sql-driver/mysql's DSN format, e.g.
// "user:pass@tcp(127.0.0.1:3306)/orchestrator?parseTime=true").
func NewMySQLLog(dsn string) (*MySQLLog, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql event log: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql event log: %w", err)
	}

	l := &MySQLLog{db: db, backend: "mysql"}
	if err := l.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *MySQLLog) createSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS bead_events (
			event_id VARCHAR(32) PRIMARY KEY,
			bead_id VARCHAR(32) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			payload JSON NOT NULL,
			timestamp VARCHAR(40) NOT NULL,
			ts_ns BIGINT NOT NULL,
			INDEX idx_bead_events_bead_id (bead_id, event_id),
			INDEX idx_bead_events_ts_ns (ts_ns)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create bead_events table: %w", err)
	}
	return nil
}

// AppendEvent implements Log.
func (l *MySQLLog) AppendEvent(ctx context.Context, e bead.Event) (ids.EventID, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	id, err := l.appendEvent(ctx, e)
	l.metrics.RecordEventLogAppend(l.backend, time.Since(start), err)
	return id, err
}

func (l *MySQLLog) appendEvent(ctx context.Context, e bead.Event) (ids.EventID, error) {
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
func (l *MySQLLog) ReadEvents(ctx context.Context, beadID ids.BeadID) ([]bead.Event, error) {
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
func (l *MySQLLog) ReplayFrom(ctx context.Context, afterID ids.EventID) ([]bead.Event, error) {
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
func (l *MySQLLog) LastEventID(ctx context.Context) (ids.EventID, error) {
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
func (l *MySQLLog) Query(ctx context.Context, q Query) ([]bead.Event, error) {
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
		// ts_ns, not the text timestamp column: RFC3339Nano text sorts
		// lexicographically, which disagrees with time.Time.After once one
		// side has a fractional-second suffix and the other doesn't.
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

// Close implements Log.
func (l *MySQLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

var _ Log = (*MySQLLog)(nil)
