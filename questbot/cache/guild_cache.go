package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/quest"
)

// Store is the durable repository the cache loads from and the flush loop
// writes back to. It is the owner of record; the cache is a staging layer.
type Store interface {
	Load(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string) (models.Aggregate, error)
	Upsert(ctx context.Context, aggregate models.Aggregate) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

// Key addresses one aggregate inside a guild's table.
type Key struct {
	Kind models.AggregateKind
	ID   string
}

// Entry wraps one cached aggregate with dirty tracking. The version counter
// increments on every mutation and is how the flush loop detects writes that
// happened after its snapshot.
type Entry struct {
	mu             sync.Mutex
	aggregate      models.Aggregate
	loaded         bool
	dirty          bool
	version        uint64
	lastAccessedAt time.Time
	lastFlushedAt  time.Time
}

// FlushItem is one dirty entry captured by SnapshotDirty. Aggregate is a
// clone, safe to serialize while the command path keeps mutating the cached
// original.
type FlushItem struct {
	GuildID   snowflake.ID
	Key       Key
	Aggregate models.Aggregate
	Version   uint64
}

type guildEntries struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
}

// GuildTable is the per-guild in-memory aggregate store. Guild tables are
// created lazily on first access and evicted only on explicit Reset or
// process shutdown; dirty entries must never be dropped by aging.
//
// All cross-goroutine mutation goes through Mutate, which serializes
// read-modify-write per aggregate. Resident entries are never reloaded, so
// Mutate does no network I/O once an aggregate is cached.
type GuildTable struct {
	store Store
	now   func() time.Time

	mu     sync.RWMutex
	guilds map[snowflake.ID]*guildEntries
}

func NewGuildTable(store Store) *GuildTable {
	return &GuildTable{
		store:  store,
		now:    time.Now,
		guilds: make(map[snowflake.ID]*guildEntries),
	}
}

func (t *GuildTable) guild(guildID snowflake.ID) *guildEntries {
	t.mu.RLock()
	g := t.guilds[guildID]
	t.mu.RUnlock()
	if g != nil {
		return g
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if g = t.guilds[guildID]; g == nil {
		g = &guildEntries{entries: make(map[Key]*Entry)}
		t.guilds[guildID] = g
	}
	return g
}

// entry returns the cache slot for the key, creating an unloaded placeholder
// if absent. The caller resolves the placeholder under the entry lock.
func (t *GuildTable) entry(guildID snowflake.ID, key Key) *Entry {
	g := t.guild(guildID)

	g.mu.RLock()
	e := g.entries[key]
	g.mu.RUnlock()
	if e != nil {
		return e
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if e = g.entries[key]; e == nil {
		e = &Entry{}
		g.entries[key] = e
	}
	return e
}

// acquire returns the entry for key with its lock held. A failed load evicts
// the placeholder while other callers may still be queued on its lock; a
// caller that wins the lock on an evicted entry would mutate a slot the
// flush loop can no longer see, so the lookup restarts until the locked
// entry is still the one in the map.
func (t *GuildTable) acquire(guildID snowflake.ID, key Key) *Entry {
	g := t.guild(guildID)
	for {
		e := t.entry(guildID, key)
		e.mu.Lock()
		g.mu.RLock()
		live := g.entries[key] == e
		g.mu.RUnlock()
		if live {
			return e
		}
		e.mu.Unlock()
	}
}

func (t *GuildTable) evict(guildID snowflake.ID, key Key, e *Entry) {
	g := t.guild(guildID)
	g.mu.Lock()
	if g.entries[key] == e {
		delete(g.entries, key)
	}
	g.mu.Unlock()
}

// ensureLoaded resolves an unloaded placeholder from the store. Must be
// called with e.mu held. A failed load evicts the placeholder; callers
// queued on its lock notice the eviction in acquire and retry on a fresh
// slot.
func (t *GuildTable) ensureLoaded(ctx context.Context, guildID snowflake.ID, key Key, e *Entry) error {
	if e.loaded {
		return nil
	}
	aggregate, err := t.store.Load(ctx, guildID, key.Kind, key.ID)
	if err != nil {
		t.evict(guildID, key, e)
		return err
	}
	e.aggregate = aggregate
	e.loaded = true
	e.lastFlushedAt = t.now()
	return nil
}

// Get returns the cached aggregate, loading it from the store on a miss.
// Fails with quest.ErrNotFound when absent in both cache and store.
func (t *GuildTable) Get(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string) (models.Aggregate, error) {
	key := Key{Kind: kind, ID: id}
	e := t.acquire(guildID, key)
	defer e.mu.Unlock()

	if err := t.ensureLoaded(ctx, guildID, key, e); err != nil {
		return nil, err
	}
	e.lastAccessedAt = t.now()
	return e.aggregate, nil
}

// GetOrCreate behaves like Get but synthesizes a new aggregate via factory
// on a store miss and stages it dirty. Used for lazily provisioned per-guild
// user profiles.
func (t *GuildTable) GetOrCreate(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string, factory func() models.Aggregate) (models.Aggregate, error) {
	key := Key{Kind: kind, ID: id}
	e := t.acquire(guildID, key)
	defer e.mu.Unlock()

	if !e.loaded {
		aggregate, err := t.store.Load(ctx, guildID, kind, id)
		switch {
		case err == nil:
			e.aggregate = aggregate
			e.lastFlushedAt = t.now()
		case isNotFound(err):
			e.aggregate = factory()
			e.dirty = true
			e.version = 1
		default:
			t.evict(guildID, key, e)
			return nil, err
		}
		e.loaded = true
	}
	e.lastAccessedAt = t.now()
	return e.aggregate, nil
}

// Mutate is the only sanctioned mutation path. It loads the aggregate (from
// cache, or the store on a miss), applies fn under the per-aggregate lock,
// bumps the version and marks the entry dirty. When fn returns an error the
// aggregate is taken as untouched and neither happens.
func (t *GuildTable) Mutate(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string, fn func(models.Aggregate) error) error {
	key := Key{Kind: kind, ID: id}
	e := t.acquire(guildID, key)
	defer e.mu.Unlock()

	if err := t.ensureLoaded(ctx, guildID, key, e); err != nil {
		return err
	}
	e.lastAccessedAt = t.now()
	if err := fn(e.aggregate); err != nil {
		return err
	}
	e.version++
	e.dirty = true
	return nil
}

// Put stages a brand-new aggregate as dirty, e.g. right after the generator
// minted its id. Fails if the slot is already occupied.
func (t *GuildTable) Put(guildID snowflake.ID, aggregate models.Aggregate) error {
	key := Key{Kind: aggregate.AggregateKind(), ID: aggregate.AggregateID()}
	e := t.acquire(guildID, key)
	defer e.mu.Unlock()

	if e.loaded {
		return fmt.Errorf("put %s %s: slot already cached", key.Kind, key.ID)
	}
	e.aggregate = aggregate
	e.loaded = true
	e.dirty = true
	e.version = 1
	e.lastAccessedAt = t.now()
	return nil
}

// MarkDirty is the escape hatch for callers that mutated an aggregate they
// obtained from Get directly. Same tracking effect as Mutate.
func (t *GuildTable) MarkDirty(guildID snowflake.ID, kind models.AggregateKind, id string) {
	g := t.guild(guildID)
	g.mu.RLock()
	e := g.entries[Key{Kind: kind, ID: id}]
	g.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.loaded {
		e.version++
		e.dirty = true
	}
	e.mu.Unlock()
}

// SnapshotDirty captures every dirty entry of the guild without clearing the
// flags. Aggregates are cloned under the entry lock so the flush loop never
// reads a half-applied mutation.
func (t *GuildTable) SnapshotDirty(guildID snowflake.ID) []FlushItem {
	t.mu.RLock()
	g := t.guilds[guildID]
	t.mu.RUnlock()
	if g == nil {
		return nil
	}

	g.mu.RLock()
	keys := make([]Key, 0, len(g.entries))
	entries := make([]*Entry, 0, len(g.entries))
	for k, e := range g.entries {
		keys = append(keys, k)
		entries = append(entries, e)
	}
	g.mu.RUnlock()

	var items []FlushItem
	for i, e := range entries {
		e.mu.Lock()
		if e.loaded && e.dirty {
			items = append(items, FlushItem{
				GuildID:   guildID,
				Key:       keys[i],
				Aggregate: e.aggregate.Clone(),
				Version:   e.version,
			})
		}
		e.mu.Unlock()
	}
	return items
}

// MarkFlushed clears the dirty flag only if the entry's version still equals
// the version observed at snapshot time. A mutation that landed during the
// flush keeps the entry dirty for the next cycle.
func (t *GuildTable) MarkFlushed(guildID snowflake.ID, key Key, flushedVersion uint64) {
	t.mu.RLock()
	g := t.guilds[guildID]
	t.mu.RUnlock()
	if g == nil {
		return
	}
	g.mu.RLock()
	e := g.entries[key]
	g.mu.RUnlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.version == flushedVersion {
		e.dirty = false
		e.lastFlushedAt = t.now()
	}
	e.mu.Unlock()
}

// ContainsID reports whether any cached entry in any guild carries the id.
// The generator uses this to collision check against ids staged but not yet
// flushed to the store.
func (t *GuildTable) ContainsID(id string) bool {
	t.mu.RLock()
	guilds := make([]*guildEntries, 0, len(t.guilds))
	for _, g := range t.guilds {
		guilds = append(guilds, g)
	}
	t.mu.RUnlock()

	for _, g := range guilds {
		g.mu.RLock()
		for k := range g.entries {
			if k.ID == id {
				g.mu.RUnlock()
				return true
			}
		}
		g.mu.RUnlock()
	}
	return false
}

// Guilds lists every guild with an active table.
func (t *GuildTable) Guilds() []snowflake.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]snowflake.ID, 0, len(t.guilds))
	for id := range t.guilds {
		ids = append(ids, id)
	}
	return ids
}

// DirtyCount reports pending write-back entries across all guilds.
func (t *GuildTable) DirtyCount() int {
	count := 0
	for _, guildID := range t.Guilds() {
		count += len(t.SnapshotDirty(guildID))
	}
	return count
}

// Reset drops a guild's table. Administrative use only: pending dirty
// entries are lost, so callers flush first.
func (t *GuildTable) Reset(guildID snowflake.ID) {
	t.mu.Lock()
	delete(t.guilds, guildID)
	t.mu.Unlock()
}

func isNotFound(err error) bool {
	return errors.Is(err, quest.ErrNotFound)
}
