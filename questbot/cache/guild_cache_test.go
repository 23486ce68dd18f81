package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = snowflake.ID(100200300400500)

// memStore is an in-memory Store fake with call counting.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]models.Aggregate
	loads   int
	upserts int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Aggregate)}
}

func (s *memStore) Load(_ context.Context, _ snowflake.ID, _ models.AggregateKind, id string) (models.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, quest.ErrNotFound)
	}
	return row.Clone(), nil
}

func (s *memStore) Upsert(_ context.Context, aggregate models.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows[aggregate.AggregateID()] = aggregate.Clone()
	return nil
}

func (s *memStore) ExistsID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[id]
	return ok, nil
}

func (s *memStore) put(a models.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[a.AggregateID()] = a
}

func (s *memStore) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func storedQuest(id string) *models.Quest {
	return &models.Quest{
		ID:    id,
		Title: "Tomb of the Iron King",
		State: models.QuestAnnounced,
	}
}

func TestGetLoadsOnceThenStaysResident(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	for i := 0; i < 5; i++ {
		got, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
		require.NoError(t, err)
		assert.Equal(t, "QUESH3X1T7", got.AggregateID())
	}

	assert.Equal(t, 1, store.loadCount(), "resident entry must not be reloaded")
}

func TestGetMiss(t *testing.T) {
	table := NewGuildTable(newMemStore())

	_, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
	require.ErrorIs(t, err, quest.ErrNotFound)
}

func TestFailedLoadEvictsPlaceholder(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("connection reset")
	table := NewGuildTable(store)

	_, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
	require.Error(t, err)

	// Store recovers; the next Get must retry instead of serving the dead
	// placeholder.
	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()
	store.put(storedQuest("QUESH3X1T7"))

	got, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
	require.NoError(t, err)
	assert.Equal(t, "QUESH3X1T7", got.AggregateID())
}

// gatedStore fails its first Load and blocks inside it until released, so a
// test can park other callers on the entry lock while the load is in flight.
type gatedStore struct {
	memStore
	entered  chan struct{}
	release  chan struct{}
	failOnce bool
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memStore: memStore{rows: make(map[string]models.Aggregate)},
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *gatedStore) Load(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string) (models.Aggregate, error) {
	s.mu.Lock()
	first := !s.failOnce
	s.failOnce = true
	s.mu.Unlock()
	if first {
		s.entered <- struct{}{}
		<-s.release
		return nil, errors.New("connection reset")
	}
	return s.memStore.Load(ctx, guildID, kind, id)
}

func TestMutateQueuedBehindFailedLoadStaysTracked(t *testing.T) {
	store := newGatedStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	getErr := make(chan error, 1)
	go func() {
		_, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
		getErr <- err
	}()
	<-store.entered

	// The Get holds the placeholder lock inside the store load; this Mutate
	// queues up behind it.
	mutateErr := make(chan error, 1)
	go func() {
		mutateErr <- table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
			a.(*models.Quest).Title = "renamed while load was failing"
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)
	close(store.release)

	require.Error(t, <-getErr)
	require.NoError(t, <-mutateErr)

	// The failed load evicted the placeholder the Mutate was queued on. An
	// acknowledged mutation must still be reachable by the flush loop.
	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1, "acknowledged write must be visible to SnapshotDirty")
	assert.Equal(t, "renamed while load was failing", items[0].Aggregate.(*models.Quest).Title)
}

func TestGetOrCreate(t *testing.T) {
	store := newMemStore()
	table := NewGuildTable(store)

	created, err := table.GetOrCreate(context.Background(), testGuild, models.KindUser, "USERA2B4C6", func() models.Aggregate {
		return &models.User{ID: "USERA2B4C6", GuildID: testGuild, Username: "mara"}
	})
	require.NoError(t, err)
	assert.Equal(t, "mara", created.(*models.User).Username)

	// The synthesized profile is staged dirty for the next flush.
	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(1), items[0].Version)

	// Second call returns the resident aggregate without invoking factory.
	again, err := table.GetOrCreate(context.Background(), testGuild, models.KindUser, "USERA2B4C6", func() models.Aggregate {
		t.Fatal("factory called for resident entry")
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, created, again)
}

func TestGetOrCreateLoadsExisting(t *testing.T) {
	store := newMemStore()
	store.put(&models.User{ID: "USERA2B4C6", GuildID: testGuild, Username: "rook"})
	table := NewGuildTable(store)

	got, err := table.GetOrCreate(context.Background(), testGuild, models.KindUser, "USERA2B4C6", func() models.Aggregate {
		t.Fatal("factory called despite store hit")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rook", got.(*models.User).Username)
	assert.Empty(t, table.SnapshotDirty(testGuild), "loaded entry must start clean")
}

func TestMutateBumpsVersionAndMarksDirty(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	err := table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
		a.(*models.Quest).Title = "renamed"
		return nil
	})
	require.NoError(t, err)

	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(1), items[0].Version)
	assert.Equal(t, "renamed", items[0].Aggregate.(*models.Quest).Title)
}

func TestMutateFnErrorLeavesEntryClean(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	opErr := errors.New("refused")
	err := table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(models.Aggregate) error {
		return opErr
	})
	require.ErrorIs(t, err, opErr)
	assert.Empty(t, table.SnapshotDirty(testGuild), "failed mutation must not dirty the entry")
}

func TestMutateConcurrent(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
				q := a.(*models.Quest)
				q.Signups = append(q.Signups, models.Signup{UserID: "USERA2B4C6"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)
	assert.Equal(t, uint64(n), items[0].Version)
	assert.Len(t, items[0].Aggregate.(*models.Quest).Signups, n)
	assert.Equal(t, 1, store.loadCount(), "concurrent mutators share one load")
}

func TestPut(t *testing.T) {
	table := NewGuildTable(newMemStore())

	q := storedQuest("QUESH3X1T7")
	require.NoError(t, table.Put(testGuild, q))

	got, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
	require.NoError(t, err)
	assert.Same(t, models.Aggregate(q), got)

	// Double-put on an occupied slot is rejected.
	require.Error(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))
}

func TestSnapshotDirtyClones(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	require.NoError(t, table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
		a.(*models.Quest).Signups = []models.Signup{{UserID: "USERA2B4C6"}}
		return nil
	}))

	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)
	snapshot := items[0].Aggregate.(*models.Quest)

	// Mutating the cached original must not reach the snapshot.
	require.NoError(t, table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
		a.(*models.Quest).Signups[0].UserID = "USERD5E7F9"
		return nil
	}))
	assert.Equal(t, "USERA2B4C6", snapshot.Signups[0].UserID)

	// Snapshotting does not clear dirty flags.
	assert.Len(t, table.SnapshotDirty(testGuild), 1)
}

func TestMarkFlushedVersionRace(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	mutate := func() {
		require.NoError(t, table.Mutate(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7", func(a models.Aggregate) error {
			return nil
		}))
	}

	mutate()
	items := table.SnapshotDirty(testGuild)
	require.Len(t, items, 1)

	// A mutation lands between snapshot and ack: the entry must stay dirty.
	mutate()
	table.MarkFlushed(testGuild, items[0].Key, items[0].Version)
	require.Len(t, table.SnapshotDirty(testGuild), 1, "entry acked with stale version must stay dirty")

	// Clean ack with the current version clears it.
	items = table.SnapshotDirty(testGuild)
	table.MarkFlushed(testGuild, items[0].Key, items[0].Version)
	assert.Empty(t, table.SnapshotDirty(testGuild))
}

func TestContainsID(t *testing.T) {
	table := NewGuildTable(newMemStore())
	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))
	require.NoError(t, table.Put(snowflake.ID(999), storedQuest("QUESK2L4M6")))

	assert.True(t, table.ContainsID("QUESH3X1T7"))
	assert.True(t, table.ContainsID("QUESK2L4M6"), "ids staged in other guilds count too")
	assert.False(t, table.ContainsID("QUESN3P5Q7"))
}

func TestGuildIsolation(t *testing.T) {
	store := newMemStore()
	store.put(storedQuest("QUESH3X1T7"))
	table := NewGuildTable(store)

	_, err := table.Get(context.Background(), testGuild, models.KindQuest, "QUESH3X1T7")
	require.NoError(t, err)
	_, err = table.Get(context.Background(), snowflake.ID(999), models.KindQuest, "QUESH3X1T7")
	require.NoError(t, err)

	// Each guild resolves its own copy from the store.
	assert.Equal(t, 2, store.loadCount())
	assert.Len(t, table.Guilds(), 2)
}

func TestReset(t *testing.T) {
	table := NewGuildTable(newMemStore())
	require.NoError(t, table.Put(testGuild, storedQuest("QUESH3X1T7")))

	table.Reset(testGuild)
	assert.Empty(t, table.Guilds())
	assert.False(t, table.ContainsID("QUESH3X1T7"))
}
