package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/beadwright/orchestrator/ids"
)

func TestSQLiteMessageStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/channel.db"

	store, err := NewSQLiteMessageStore(path)
	require.NoError(t, err)

	qm := queuedMessage{
		message:  Message{ID: ids.New(), Payload: []byte("hi"), CorrelationID: "c1"},
		mode:     AtLeastOnce,
		queuedAt: time.Now(),
	}
	require.NoError(t, store.SaveMessage(ctx, "chan-1", qm))

	pending, err := store.LoadPending(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, qm.message.ID, pending[0].message.ID)
	require.Equal(t, qm.message.Payload, pending[0].message.Payload)
	require.Equal(t, qm.message.CorrelationID, pending[0].message.CorrelationID)

	require.NoError(t, store.DeleteMessage(ctx, "chan-1", qm.message.ID))
	pending, err = store.LoadPending(ctx, "chan-1")
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, store.Close())
}

func TestSQLiteMessageStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/channel.db"

	store, err := NewSQLiteMessageStore(path)
	require.NoError(t, err)
	qm := queuedMessage{message: Message{ID: ids.New()}, mode: ExactlyOnce, queuedAt: time.Now()}
	require.NoError(t, store.SaveMessage(ctx, "chan-1", qm))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteMessageStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	pending, err := reopened.LoadPending(ctx, "chan-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, qm.message.ID, pending[0].message.ID)
	require.Equal(t, ExactlyOnce, pending[0].mode)
}

func TestSQLiteMessageStore_ScopesLoadPendingByChannelID(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteMessageStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	a := queuedMessage{message: Message{ID: ids.New()}, queuedAt: time.Now()}
	b := queuedMessage{message: Message{ID: ids.New()}, queuedAt: time.Now()}
	require.NoError(t, store.SaveMessage(ctx, "chan-a", a))
	require.NoError(t, store.SaveMessage(ctx, "chan-b", b))

	pending, err := store.LoadPending(ctx, "chan-a")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, a.message.ID, pending[0].message.ID)
}
