package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFlushInterval paces the write-back loop. Commands return
	// against the cache, so this only bounds staleness of the store.
	DefaultFlushInterval = 15 * time.Second
	// DefaultGuildFlushTimeout bounds one guild's flush so a slow guild
	// cannot starve the others.
	DefaultGuildFlushTimeout = 30 * time.Second
)

// FlushStats are cumulative write-back counters, exposed by /metrics.
type FlushStats struct {
	Cycles         int64
	Flushed        int64
	Errors         int64
	LastBatch      int64
	LastDurationMS int64
}

// Flusher periodically drains dirty cache entries and upserts them to the
// store. A failed upsert is logged and the entry stays dirty for the next
// cycle; nothing is ever dropped on flush failure. Guilds flush in parallel,
// each bounded by its own timeout.
type Flusher struct {
	table        *GuildTable
	store        Store
	interval     time.Duration
	guildTimeout time.Duration

	shutdown  chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	cycles         atomic.Int64
	flushed        atomic.Int64
	errors         atomic.Int64
	lastBatch      atomic.Int64
	lastDurationMS atomic.Int64
}

func NewFlusher(table *GuildTable, store Store, interval, guildTimeout time.Duration) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if guildTimeout <= 0 {
		guildTimeout = DefaultGuildFlushTimeout
	}
	return &Flusher{
		table:        table,
		store:        store,
		interval:     interval,
		guildTimeout: guildTimeout,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the background loop.
func (f *Flusher) Start() {
	f.startOnce.Do(func() {
		go f.run()
	})
}

func (f *Flusher) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.FlushAll(context.Background())
		case <-f.shutdown:
			return
		}
	}
}

// Stop halts the loop and performs one best-effort final flush bounded by
// ctx. Entries that fail this last flush revert to the previously persisted
// version on restart; the cache is a staging layer, not the system of
// record.
func (f *Flusher) Stop(ctx context.Context) {
	f.stopOnce.Do(func() {
		close(f.shutdown)
		<-f.done

		flushed, failed := f.FlushAll(ctx)
		slog.Info("Final cache flush complete",
			slog.String("type", "sys"),
			slog.Int("flushed", flushed),
			slog.Int("failed", failed))
	})
}

// FlushAll drains every guild's dirty set once. Returns flushed and failed
// entry counts.
func (f *Flusher) FlushAll(ctx context.Context) (flushed, failed int) {
	start := time.Now()

	var (
		mu           sync.Mutex
		totalFlushed int
		totalFailed  int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, guildID := range f.table.Guilds() {
		guildID := guildID
		g.Go(func() error {
			ok, bad := f.flushGuild(ctx, guildID)
			mu.Lock()
			totalFlushed += ok
			totalFailed += bad
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	f.cycles.Add(1)
	f.flushed.Add(int64(totalFlushed))
	f.errors.Add(int64(totalFailed))
	f.lastBatch.Store(int64(totalFlushed + totalFailed))
	f.lastDurationMS.Store(time.Since(start).Milliseconds())

	if totalFlushed+totalFailed > 0 {
		slog.Info("Cache flush cycle",
			slog.String("type", "db"),
			slog.Int("flushed", totalFlushed),
			slog.Int("failed", totalFailed),
			slog.Duration("took", time.Since(start)))
	}
	return totalFlushed, totalFailed
}

func (f *Flusher) flushGuild(ctx context.Context, guildID snowflake.ID) (flushed, failed int) {
	items := f.table.SnapshotDirty(guildID)
	if len(items) == 0 {
		return 0, 0
	}

	guildCtx, cancel := context.WithTimeout(ctx, f.guildTimeout)
	defer cancel()

	for _, item := range items {
		if err := f.store.Upsert(guildCtx, item.Aggregate); err != nil {
			failed++
			slog.Error("Failed to flush cache entry",
				slog.String("type", "db"),
				slog.String("guild_id", guildID.String()),
				slog.String("kind", string(item.Key.Kind)),
				slog.String("id", item.Key.ID),
				slog.String("error", err.Error()))
			continue
		}
		f.table.MarkFlushed(guildID, item.Key, item.Version)
		flushed++
	}
	return flushed, failed
}

// Stats returns cumulative flush counters.
func (f *Flusher) Stats() FlushStats {
	return FlushStats{
		Cycles:         f.cycles.Load(),
		Flushed:        f.flushed.Load(),
		Errors:         f.errors.Load(),
		LastBatch:      f.lastBatch.Load(),
		LastDurationMS: f.lastDurationMS.Load(),
	}
}
