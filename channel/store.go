package channel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// errClosed is returned by store operations after Close.
var errClosed = oerr.New(oerr.Durability, "message store is closed")

// MessageStore is the persistence backing for a DurableChannel's queued
// rows — the "in-memory queue backed by persistent rows" §2 describes.
// DurableChannel calls SaveMessage right after an enqueue and
// DeleteMessage right after a successful Receive; a SaveMessage failure
// triggers the caller's compensating rollback of both the in-memory
// enqueue and the Delivery Tracker's record.
type MessageStore interface {
	SaveMessage(ctx context.Context, channelID string, msg queuedMessage) error
	DeleteMessage(ctx context.Context, channelID string, messageID ids.ID) error
	LoadPending(ctx context.Context, channelID string) ([]queuedMessage, error)
	Close() error
}

// storedMessage is the JSON-serializable view of a Message plus its
// source/target metadata, mirroring eventlog's payload-column pattern:
// one JSON blob rather than one column per field.
type storedMessage struct {
	Payload          []byte `json:"payload,omitempty"`
	CorrelationID    string `json:"correlation_id,omitempty"`
	SourceWorkflowID string `json:"source_workflow_id,omitempty"`
	TargetWorkflowID string `json:"target_workflow_id,omitempty"`
}

func toStoredMessage(m Message) storedMessage {
	return storedMessage{
		Payload:          m.Payload,
		CorrelationID:    m.CorrelationID,
		SourceWorkflowID: m.SourceWorkflowID,
		TargetWorkflowID: m.TargetWorkflowID,
	}
}

// MemMessageStore is an in-process MessageStore, the default when a
// channel is not configured to persist (config.PersistMessages == false)
// and the backing used by channel's own tests.
type MemMessageStore struct {
	mu    sync.Mutex
	byKey map[string]map[ids.ID]queuedMessage
}

// NewMemMessageStore constructs an empty in-memory message store.
func NewMemMessageStore() *MemMessageStore {
	return &MemMessageStore{byKey: make(map[string]map[ids.ID]queuedMessage)}
}

func (s *MemMessageStore) SaveMessage(_ context.Context, channelID string, msg queuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.byKey[channelID]
	if !ok {
		bucket = make(map[ids.ID]queuedMessage)
		s.byKey[channelID] = bucket
	}
	bucket[msg.message.ID] = msg
	return nil
}

func (s *MemMessageStore) DeleteMessage(_ context.Context, channelID string, messageID ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey[channelID], messageID)
	return nil
}

func (s *MemMessageStore) LoadPending(_ context.Context, channelID string) ([]queuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.byKey[channelID]
	out := make([]queuedMessage, 0, len(bucket))
	for _, m := range bucket {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].queuedAt.Before(out[j].queuedAt) })
	return out, nil
}

func (s *MemMessageStore) Close() error { return nil }

// SQLiteMessageStore is a SQLite-backed MessageStore, used when
// config.PersistMessages is true: the FIFO queue held by DurableChannel
// is a cache over this table, so a crash between enqueue and delivery
// loses nothing that a restart's LoadPending can't recover. Grounded on
// eventlog/sqlite.go's connection-pragma and schema-on-open idiom —
// PersistMessages governs the same "does this component need durable
// storage" choice eventlog's own backends already answer per §4.1.
type SQLiteMessageStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteMessageStore opens (creating if necessary) a SQLite-backed
// channel_message store at path.
func NewSQLiteMessageStore(path string) (*SQLiteMessageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite message store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite message store (%s): %w", pragma, err)
		}
	}

	s := &SQLiteMessageStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteMessageStore) createSchema(ctx context.Context) error {
	// Column names follow spec.md §6's channel_message table exactly:
	// channel_id, message_id, message_data, metadata, queued_at,
	// delivery_mode, with a secondary index on channel_id.
	const schema = `
		CREATE TABLE IF NOT EXISTS channel_message (
			channel_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			message_data BLOB NOT NULL,
			metadata TEXT NOT NULL,
			queued_at INTEGER NOT NULL,
			delivery_mode INTEGER NOT NULL,
			PRIMARY KEY (channel_id, message_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create channel_message table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_channel_message_channel_id ON channel_message(channel_id)"); err != nil {
		return fmt.Errorf("create channel_id index: %w", err)
	}
	return nil
}

func (s *SQLiteMessageStore) SaveMessage(ctx context.Context, channelID string, msg queuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	meta, err := json.Marshal(toStoredMessage(msg.message))
	if err != nil {
		return oerr.New(oerr.Durability, "serialize queued message: %v", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO channel_message (channel_id, message_id, message_data, metadata, queued_at, delivery_mode) VALUES (?, ?, ?, ?, ?, ?)`,
		channelID, msg.message.ID.String(), msg.message.Payload, meta, msg.queuedAt.UnixNano(), int(msg.mode))
	if err != nil {
		return oerr.New(oerr.Durability, "persist queued message: %v", err).Wrap(err)
	}
	return nil
}

func (s *SQLiteMessageStore) DeleteMessage(ctx context.Context, channelID string, messageID ids.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_message WHERE channel_id = ? AND message_id = ?`,
		channelID, messageID.String())
	if err != nil {
		return oerr.New(oerr.Durability, "delete queued message: %v", err).Wrap(err)
	}
	return nil
}

func (s *SQLiteMessageStore) LoadPending(ctx context.Context, channelID string) ([]queuedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, message_data, metadata, queued_at, delivery_mode FROM channel_message WHERE channel_id = ? ORDER BY queued_at ASC`,
		channelID)
	if err != nil {
		return nil, oerr.New(oerr.External, "load pending messages: %v", err).Wrap(err)
	}
	defer rows.Close()

	out := make([]queuedMessage, 0)
	for rows.Next() {
		var messageID string
		var payload []byte
		var rawMeta string
		var queuedAtNS int64
		var mode int
		if err := rows.Scan(&messageID, &payload, &rawMeta, &queuedAtNS, &mode); err != nil {
			return nil, oerr.New(oerr.External, "scan queued message row: %v", err).Wrap(err)
		}
		var meta storedMessage
		if err := json.Unmarshal([]byte(rawMeta), &meta); err != nil {
			return nil, oerr.New(oerr.Durability, "decode queued message metadata %s: %v", messageID, err)
		}
		out = append(out, queuedMessage{
			message: Message{
				ID:               ids.ID(messageID),
				Payload:          payload,
				CorrelationID:    meta.CorrelationID,
				SourceWorkflowID: meta.SourceWorkflowID,
				TargetWorkflowID: meta.TargetWorkflowID,
			},
			mode:     DeliveryMode(mode),
			queuedAt: time.Unix(0, queuedAtNS),
		})
	}
	return out, rows.Err()
}

func (s *SQLiteMessageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var (
	_ MessageStore = (*MemMessageStore)(nil)
	_ MessageStore = (*SQLiteMessageStore)(nil)
)
