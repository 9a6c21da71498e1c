package channel

import (
	"context"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// Message is a unit of payload carried over a DurableChannel.
type Message struct {
	ID               ids.ID
	Payload          []byte
	CorrelationID    string
	SourceWorkflowID string
	TargetWorkflowID string
}

// Config bounds a DurableChannel's queue depth, default delivery mode,
// and message expiry.
type Config struct {
	ID               string
	MaxQueueDepth    int
	DefaultMode      DeliveryMode
	MessageTTL       time.Duration
	SourceWorkflowID string
	TargetWorkflowID string
}

// DefaultConfig mirrors the teacher's conservative-defaults pattern: a
// bounded queue, at-least-once delivery, and no expiry.
func DefaultConfig() Config {
	return Config{MaxQueueDepth: 10_000, DefaultMode: AtLeastOnce}
}

type queuedMessage struct {
	message  Message
	mode     DeliveryMode
	queuedAt time.Time
}

// DurableChannel is a FIFO message queue between two workflows, backed by
// a Delivery Tracker for idempotency and attempt bookkeeping and a
// MessageStore for the persistent rows described in §2/§6: the in-memory
// queue is a cache over that store, not the system of record.
type DurableChannel struct {
	config  Config
	tracker *DeliveryTracker
	store   MessageStore

	mu    sync.Mutex
	queue []queuedMessage
}

// New constructs a DurableChannel backed by an in-memory MessageStore.
// tracker may be nil, in which case delivery is not tracked (messages are
// still queued/delivered normally). Equivalent to
// NewWithStore(config, tracker, NewMemMessageStore()).
func New(config Config, tracker *DeliveryTracker) *DurableChannel {
	c, _ := NewWithStore(config, tracker, NewMemMessageStore())
	return c
}

// NewWithStore constructs a DurableChannel backed by store, loading any
// rows already persisted under config.ID (e.g. from a prior process that
// exited without draining the queue) into the in-memory FIFO before
// returning.
func NewWithStore(config Config, tracker *DeliveryTracker, store MessageStore) (*DurableChannel, error) {
	if store == nil {
		store = NewMemMessageStore()
	}
	c := &DurableChannel{config: config, tracker: tracker, store: store}

	pending, err := store.LoadPending(context.Background(), config.ID)
	if err != nil {
		return nil, oerr.New(oerr.Durability, "load pending messages for channel %s: %v", config.ID, err).Wrap(err)
	}
	c.queue = pending
	return c, nil
}

// Send enqueues message using the channel's default delivery mode.
func (c *DurableChannel) Send(ctx context.Context, message Message) (ids.ID, error) {
	return c.SendWithMode(ctx, message, c.config.DefaultMode)
}

// SendWithMode enqueues message with an explicit delivery mode. It
// registers the delivery with the tracker first; on QueueFull or
// persistence failure after enqueue it compensates by rolling back.
func (c *DurableChannel) SendWithMode(ctx context.Context, message Message, mode DeliveryMode) (ids.ID, error) {
	message.SourceWorkflowID = c.config.SourceWorkflowID
	message.TargetWorkflowID = c.config.TargetWorkflowID

	if c.tracker != nil {
		outcome, _, err := c.tracker.Track(ctx, message.ID, mode, message.CorrelationID)
		if err != nil {
			return ids.ID(""), err
		}
		if outcome == Duplicate {
			return ids.ID(""), oerr.New(oerr.Conflict, "message %s is a duplicate", message.ID).
				Wrap(oerr.ErrDuplicate)
		}
	}

	queued := queuedMessage{message: message, mode: mode, queuedAt: time.Now()}

	c.mu.Lock()
	if c.config.MaxQueueDepth > 0 && len(c.queue) >= c.config.MaxQueueDepth {
		c.mu.Unlock()
		if c.tracker != nil {
			c.tracker.Untrack(ctx, message.ID)
		}
		return ids.ID(""), oerr.New(oerr.Conflict, "channel queue full (max %d)", c.config.MaxQueueDepth).
			Wrap(oerr.ErrQueueFull)
	}
	c.queue = append(c.queue, queued)
	c.mu.Unlock()

	// Persist after the in-memory enqueue; on failure, compensate by
	// rolling back both the enqueue and the tracker's record, so a failed
	// Send leaves no trace for a retry to collide with.
	if err := c.store.SaveMessage(ctx, c.config.ID, queued); err != nil {
		c.mu.Lock()
		c.removeQueued(message.ID)
		c.mu.Unlock()
		if c.tracker != nil {
			c.tracker.Untrack(ctx, message.ID)
		}
		return ids.ID(""), oerr.New(oerr.Durability, "persist message %s: %v", message.ID, err).Wrap(err)
	}

	return message.ID, nil
}

// removeQueued drops the first queued entry with the given message id.
// Callers must hold c.mu.
func (c *DurableChannel) removeQueued(id ids.ID) {
	for i, qm := range c.queue {
		if qm.message.ID == id {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// Receive pops the head of the queue and deletes its persisted row.
// Expired messages (queued longer than MessageTTL) are silently dropped
// (no tracker notification, per the documented current behavior) and the
// next message is tried. A store deletion failure is swallowed: the
// message has already been handed to the caller, and the worst case is a
// stale row LoadPending re-delivers after a restart, which the Delivery
// Tracker's dedup/attempt bookkeeping already guards against.
func (c *DurableChannel) Receive(ctx context.Context) (Message, bool) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return Message{}, false
		}
		head := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		_ = c.store.DeleteMessage(ctx, c.config.ID, head.message.ID)

		if c.config.MessageTTL > 0 && time.Since(head.queuedAt) > c.config.MessageTTL {
			continue
		}
		return head.message, true
	}
}

// ReceiveAndAck pops the head and, if present, marks it Delivered on the
// tracker.
func (c *DurableChannel) ReceiveAndAck(ctx context.Context) (Message, bool, error) {
	msg, ok := c.Receive(ctx)
	if !ok {
		return Message{}, false, nil
	}
	if c.tracker != nil {
		if err := c.tracker.MarkDelivered(msg.ID); err != nil {
			return msg, true, err
		}
	}
	return msg, true, nil
}

// Peek returns the head message without removing it.
func (c *DurableChannel) Peek() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return Message{}, false
	}
	return c.queue[0].message, true
}

// Clear drops every queued message, including its persisted row. It does
// not affect the tracker.
func (c *DurableChannel) Clear(ctx context.Context) {
	c.mu.Lock()
	dropped := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, qm := range dropped {
		_ = c.store.DeleteMessage(ctx, c.config.ID, qm.message.ID)
	}
}

// Depth returns the current queue length.
func (c *DurableChannel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
