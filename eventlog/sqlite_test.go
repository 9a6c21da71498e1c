package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/bead"
	"github.com/beadwright/orchestrator/ids"
	"github.com/beadwright/orchestrator/metrics"
)

func TestSQLiteLog_AppendAndRecover(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/events.db"

	beadID := ids.New()

	log, err := NewSQLiteLog(path)
	require.NoError(t, err)

	var appended []ids.EventID
	for i := 0; i < 50; i++ {
		id, err := log.AppendEvent(ctx, newCreatedEvent(beadID, time.Now()))
		require.NoError(t, err)
		appended = append(appended, id)
	}
	require.NoError(t, log.Close())

	// Reopening the store pointing to the same path must recover every
	// event that a successful AppendEvent reported — the crash-recovery
	// scenario from spec §8's seed suite, minus the actual crash: SQLite's
	// WAL already guarantees nothing beyond a fsynced commit is visible.
	reopened, err := NewSQLiteLog(path)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.ReadEvents(ctx, beadID)
	require.NoError(t, err)
	require.Len(t, events, 50)
	for i, e := range events {
		require.Equal(t, appended[i], e.ID)
	}
}

func TestSQLiteLog_ReplayFromOrdering(t *testing.T) {
	ctx := context.Background()
	log, err := NewSQLiteLog(":memory:")
	require.NoError(t, err)
	defer log.Close()

	beadID := ids.New()
	var mid ids.EventID
	for i := 0; i < 10; i++ {
		id, err := log.AppendEvent(ctx, newCreatedEvent(beadID, time.Now()))
		require.NoError(t, err)
		if i == 4 {
			mid = id
		}
	}

	replayed, err := log.ReplayFrom(ctx, mid)
	require.NoError(t, err)
	require.Len(t, replayed, 5)
}

func TestSQLiteLog_QueryByEventType(t *testing.T) {
	ctx := context.Background()
	log, err := NewSQLiteLog(":memory:")
	require.NoError(t, err)
	defer log.Close()

	beadID := ids.New()
	_, err = log.AppendEvent(ctx, newCreatedEvent(beadID, time.Now()))
	require.NoError(t, err)
	_, err = log.AppendEvent(ctx, bead.Event{
		BeadID: beadID, Kind: bead.EventStateChanged,
		From: bead.Pending, To: bead.Scheduled, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	results, err := log.Query(ctx, Query{StreamID: beadID, EventType: bead.EventStateChanged})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, bead.EventStateChanged, results[0].Kind)
}

func TestSQLiteLog_QueryAfterTSOrdersByInstantNotText(t *testing.T) {
	ctx := context.Background()
	log, err := NewSQLiteLog(":memory:")
	require.NoError(t, err)
	defer log.Close()

	beadID := ids.New()

	// base has zero fractional seconds so it formats without a decimal
	// point ("...00Z"); later has a fractional component so it formats
	// with one ("...00.5Z"). Lexicographic text comparison puts '.'
	// (0x2E) below 'Z' (0x5A) and so says later < base, even though
	// later is chronologically after base.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)

	_, err = log.AppendEvent(ctx, newCreatedEvent(beadID, later))
	require.NoError(t, err)

	results, err := log.Query(ctx, Query{StreamID: beadID, AfterTS: base})
	require.NoError(t, err)
	require.Len(t, results, 1, "event strictly after AfterTS must be included regardless of fractional-second formatting")
}

func TestSQLiteLog_ClosedRejectsAppend(t *testing.T) {
	log, err := NewSQLiteLog(":memory:")
	require.NoError(t, err)
	require.NoError(t, log.Close())

	_, err = log.AppendEvent(context.Background(), newCreatedEvent(ids.New(), time.Now()))
	require.Error(t, err)
}

func TestSQLiteLog_RecordsAppendLatencyMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	log, err := NewSQLiteLog(":memory:")
	require.NoError(t, err)
	log.WithMetrics(m, "sqlite")
	defer log.Close()

	_, err = log.AppendEvent(context.Background(), newCreatedEvent(ids.New(), time.Now()))
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, fam := range families {
		if fam.GetName() != "orchestrator_eventlog_append_duration_ms" {
			continue
		}
		found = true
		require.Equal(t, dto.MetricType_HISTOGRAM, fam.GetType())
		require.EqualValues(t, 1, fam.GetMetric()[0].GetHistogram().GetSampleCount())
	}
	require.True(t, found, "orchestrator_eventlog_append_duration_ms not registered")
}
