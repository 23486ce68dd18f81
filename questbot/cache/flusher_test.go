package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushAllDrainsDirtyEntries(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)
	flusher := NewFlusher(table, store, time.Hour, time.Second)

	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))
	require.NoError(t, table.Put(testGuild, storedQuest("QUESK2L4M6")))
	require.NoError(t, table.Put(snowflake.ID(999), storedQuest("QUESN3P5Q7")))

	flushed, failed := flusher.FlushAll(context.Background())
	assert.Equal(t, 3, flushed)
	assert.Zero(t, failed)
	assert.Zero(t, table.DirtyCount())

	// Flushed rows are in the store now.
	exists, err := store.ExistsID(context.Background(), "QUESN3P5Q7")
	require.NoError(t, err)
	assert.True(t, exists)

	// Nothing dirty, nothing written.
	flushed, failed = flusher.FlushAll(context.Background())
	assert.Zero(t, flushed)
	assert.Zero(t, failed)

	stats := flusher.Stats()
	assert.Equal(t, int64(2), stats.Cycles)
	assert.Equal(t, int64(3), stats.Flushed)
	assert.Zero(t, stats.Errors)
}

func TestFlushFailureKeepsEntryDirty(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)
	flusher := NewFlusher(table, store, time.Hour, time.Second)

	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))

	store.mu.Lock()
	store.saveErr = errors.New("connection reset")
	store.mu.Unlock()

	flushed, failed := flusher.FlushAll(context.Background())
	assert.Zero(t, flushed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, table.DirtyCount(), "failed entry must stay dirty")

	// Store recovers; the retry drains it.
	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()

	flushed, failed = flusher.FlushAll(context.Background())
	assert.Equal(t, 1, flushed)
	assert.Zero(t, failed)
	assert.Zero(t, table.DirtyCount())
}

func TestFlushDoesNotAckConcurrentMutation(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)

	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))

	// Simulate a write landing between snapshot and ack by mutating through
	// a store hook on Upsert.
	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)

	require.NoError(t, table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
		a.(*models.Quest).Title = "changed mid flush"
		return nil
	}))

	require.NoError(t, store.Upsert(context.Background(), items[0].Aggregate))
	table.MarkFlushed(testGuild, items[0].Key, items[0].Version)

	assert.Equal(t, 1, table.DirtyCount(), "mid-flush mutation must survive the ack")
}

func TestStopRunsFinalFlush(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)
	flusher := NewFlusher(table, store, time.Hour, time.Second)
	flusher.Start()

	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	flusher.Stop(ctx)

	assert.Zero(t, table.DirtyCount())
	exists, err := store.ExistsID(context.Background(), "QUESH3X1T7")
	require.NoError(t, err)
	assert.True(t, exists)

	// Stop is idempotent.
	flusher.Stop(ctx)
}

func TestFlusherBackgroundCycle(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)
	flusher := NewFlusher(table, store, 10*time.Millisecond, time.Second)

	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))
	flusher.Start()
	defer flusher.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for table.DirtyCount() > 0 {
		select {
		case <-deadline:
			t.Fatal("background flusher never drained the dirty entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
