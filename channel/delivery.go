// Package channel implements the Durable Channel and its Delivery Tracker:
// FIFO message queues between workflows with at-most/at-least/exactly-once
// delivery semantics and idempotency-key deduplication.
package channel

import (
	"context"
	"sync"
	"time"

	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/oerr"
)

// DeliveryMode controls the delivery guarantee requested for a message.
type DeliveryMode int

const (
	AtMostOnce DeliveryMode = iota
	AtLeastOnce
	ExactlyOnce
)

// DeliveryStatus is the lifecycle state of a tracked delivery.
type DeliveryStatus int

const (
	Pending DeliveryStatus = iota
	Sent
	Delivered
	Failed
	Expired
	Deduplicated
)

// IsTerminal reports whether the status will not change further.
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case Delivered, Failed, Expired, Deduplicated:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the delivery ultimately succeeded.
func (s DeliveryStatus) IsSuccess() bool {
	return s == Delivered || s == Deduplicated
}

// DeliveryRecord tracks one message's delivery attempt history.
type DeliveryRecord struct {
	MessageID      ids.ID
	Status         DeliveryStatus
	Mode           DeliveryMode
	IdempotencyKey string
	Attempts       int
	FailureReason  string
	ReceivedAt     time.Time
	UpdatedAt      time.Time
}

// DeliveryTrackerConfig bounds the tracker's retry and dedup behavior.
type DeliveryTrackerConfig struct {
	MaxAttempts         int
	EnableDeduplication bool
	DedupTTL            time.Duration
}

// DefaultDeliveryTrackerConfig mirrors the teacher's own conservative
// defaults for this kind of policy struct: bounded retries, dedup on.
func DefaultDeliveryTrackerConfig() DeliveryTrackerConfig {
	return DeliveryTrackerConfig{MaxAttempts: 3, EnableDeduplication: true, DedupTTL: time.Hour}
}

// TrackOutcome distinguishes a freshly tracked message from one that
// resolved to a prior delivery via the idempotency cache.
type TrackOutcome int

const (
	Tracked TrackOutcome = iota
	Duplicate
)

// AttemptOutcome is the result of RecordAttempt.
type AttemptOutcome int

const (
	Recorded AttemptOutcome = iota
	MaxAttemptsExceededOutcome
)

// DeliveryTracker tracks in-flight deliveries and deduplicates by
// idempotency key.
type DeliveryTracker struct {
	config DeliveryTrackerConfig
	dedup  DedupCache

	mu      sync.Mutex
	records map[ids.ID]*DeliveryRecord
}

// NewDeliveryTracker constructs a tracker backed by dedup for idempotency
// lookups. Pass a MemDedupCache for single-process use or a
// RedisDedupCache to share dedup state across processes.
func NewDeliveryTracker(config DeliveryTrackerConfig, dedup DedupCache) *DeliveryTracker {
	if dedup == nil {
		dedup = NewMemDedupCache()
	}
	return &DeliveryTracker{
		config:  config,
		dedup:   dedup,
		records: make(map[ids.ID]*DeliveryRecord),
	}
}

// Track registers a new message for delivery. If idempotencyKey is
// non-empty, dedup is enabled, and the cache resolves it to a still-valid
// prior message id, Track returns (Duplicate, priorID, nil) and the caller
// must not enqueue the message.
func (t *DeliveryTracker) Track(ctx context.Context, messageID ids.ID, mode DeliveryMode, idempotencyKey string) (TrackOutcome, ids.ID, error) {
	if idempotencyKey != "" && t.config.EnableDeduplication {
		if priorID, ok, err := t.dedup.Get(ctx, idempotencyKey); err != nil {
			return Tracked, ids.ID(""), err
		} else if ok {
			return Duplicate, priorID, nil
		}
	}

	now := time.Now()
	record := &DeliveryRecord{
		MessageID:      messageID,
		Status:         Pending,
		Mode:           mode,
		IdempotencyKey: idempotencyKey,
		ReceivedAt:     now,
		UpdatedAt:      now,
	}

	t.mu.Lock()
	t.records[messageID] = record
	t.mu.Unlock()

	if idempotencyKey != "" && t.config.EnableDeduplication {
		if err := t.dedup.Put(ctx, idempotencyKey, messageID, t.config.DedupTTL); err != nil {
			return Tracked, ids.ID(""), err
		}
	}
	return Tracked, messageID, nil
}

// Untrack removes a delivery record and its dedup entry (if any). It is
// the compensating action for a Track whose caller failed a later step
// (e.g. persisting the message) and must roll back as if Track had never
// happened.
func (t *DeliveryTracker) Untrack(ctx context.Context, messageID ids.ID) {
	t.mu.Lock()
	record, ok := t.records[messageID]
	if ok {
		delete(t.records, messageID)
	}
	t.mu.Unlock()

	if ok && record.IdempotencyKey != "" && t.config.EnableDeduplication {
		_ = t.dedup.Delete(ctx, record.IdempotencyKey)
	}
}

func (t *DeliveryTracker) setStatus(messageID ids.ID, status DeliveryStatus, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[messageID]
	if !ok {
		return oerr.New(oerr.NotFound, "delivery record %s not found", messageID)
	}
	record.Status = status
	record.FailureReason = reason
	record.UpdatedAt = time.Now()
	return nil
}

// MarkSent transitions the record to Sent.
func (t *DeliveryTracker) MarkSent(messageID ids.ID) error {
	return t.setStatus(messageID, Sent, "")
}

// MarkDelivered transitions the record to Delivered.
func (t *DeliveryTracker) MarkDelivered(messageID ids.ID) error {
	return t.setStatus(messageID, Delivered, "")
}

// MarkFailed transitions the record to Failed with the given reason.
func (t *DeliveryTracker) MarkFailed(messageID ids.ID, reason string) error {
	return t.setStatus(messageID, Failed, reason)
}

// RecordAttempt increments the attempt counter; once attempts reach
// MaxAttempts the record transitions to Failed and
// MaxAttemptsExceededOutcome is returned alongside an error wrapping
// oerr.ErrMaxAttemptsExceeded.
func (t *DeliveryTracker) RecordAttempt(messageID ids.ID) (AttemptOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[messageID]
	if !ok {
		return Recorded, oerr.New(oerr.NotFound, "delivery record %s not found", messageID)
	}
	record.Attempts++
	record.UpdatedAt = time.Now()

	if record.Attempts >= t.config.MaxAttempts {
		record.Status = Failed
		record.FailureReason = "max attempts exceeded"
		return MaxAttemptsExceededOutcome, oerr.New(oerr.Conflict, "delivery %s: max attempts exceeded", messageID).
			Wrap(oerr.ErrMaxAttemptsExceeded)
	}
	return Recorded, nil
}

// Status returns the current status of a tracked message.
func (t *DeliveryTracker) Status(messageID ids.ID) (DeliveryStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[messageID]
	if !ok {
		return Pending, false
	}
	return record.Status, true
}

// CleanupDedupCache removes dedup entries older than the configured TTL.
// Backends with native TTL support (e.g. Redis) may make this a no-op.
func (t *DeliveryTracker) CleanupDedupCache(ctx context.Context) error {
	return t.dedup.Cleanup(ctx, t.config.DedupTTL)
}
