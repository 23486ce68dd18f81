package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// guildDBPrefix is how the legacy bot named its per-guild databases.
const guildDBPrefix = "guild_"

// Migrator copies legacy per-guild MongoDB databases into the Postgres
// store. Documents that fail to convert are counted and skipped, never
// aborting the run; the report at the end says what was left behind.
type Migrator struct {
	pgDB      *bun.DB
	client    *mongo.Client
	batchSize int
	stats     MigrationStats
}

func NewMigrator(pgDB *bun.DB, client *mongo.Client) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		client:    client,
		batchSize: 500,
		stats: MigrationStats{
			Tables:    make(map[string]*TableStats),
			StartTime: time.Now(),
		},
	}
}

// SetBatchSize overrides the default insert batch size.
func (m *Migrator) SetBatchSize(size int) {
	if size > 0 {
		m.batchSize = size
	}
}

// MigrateAll discovers legacy guild databases and migrates each of them.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongo client not configured")
	}

	names, err := m.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to list legacy databases: %w", err)
	}

	m.stats.StartTime = time.Now()

	for _, name := range names {
		if !strings.HasPrefix(name, guildDBPrefix) {
			continue
		}
		guildID, err := snowflake.Parse(strings.TrimPrefix(name, guildDBPrefix))
		if err != nil {
			slog.Warn("Skipping legacy database with unparseable guild id",
				slog.String("type", "sys"),
				slog.String("database", name))
			continue
		}
		if err := m.MigrateGuild(ctx, guildID, name); err != nil {
			return fmt.Errorf("guild %s: %w", guildID, err)
		}
		m.stats.Guilds++
	}

	m.stats.EndTime = time.Now()
	m.logFinalStats()
	return nil
}

// MigrateGuild migrates one legacy guild database. Users and characters go
// first so quest signups always reference migrated rows.
func (m *Migrator) MigrateGuild(ctx context.Context, guildID snowflake.ID, dbName string) error {
	db := m.client.Database(dbName)

	slog.Info("Migrating legacy guild database",
		slog.String("type", "sys"),
		slog.String("guild_id", guildID.String()),
		slog.String("database", dbName))

	steps := []struct {
		name string
		fn   func(context.Context, snowflake.ID, *mongo.Database) error
	}{
		{"users", m.migrateUsers},
		{"characters", m.migrateCharacters},
		{"quests", m.migrateQuests},
		{"summaries", m.migrateSummaries},
	}

	for _, s := range steps {
		if err := s.fn(ctx, guildID, db); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", s.name, err)
		}
	}
	return nil
}

func (m *Migrator) migrateUsers(ctx context.Context, guildID snowflake.ID, db *mongo.Database) error {
	stats := m.tableStats("users")

	cur, err := db.Collection("users").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query users: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.User
	for cur.Next(ctx) {
		var mu MongoUser
		if err := cur.Decode(&mu); err != nil {
			stats.Errors++
			continue
		}
		stats.Read++

		u, err := m.convertUser(guildID, mu)
		if err != nil {
			slog.Warn("Skipping legacy user", slog.String("type", "sys"), slog.Any("error", err))
			stats.Skipped++
			continue
		}
		batch = append(batch, u)

		if len(batch) >= m.batchSize {
			if err := insertBatch(ctx, m.pgDB, &batch, stats); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return insertBatch(ctx, m.pgDB, &batch, stats)
}

func (m *Migrator) migrateCharacters(ctx context.Context, guildID snowflake.ID, db *mongo.Database) error {
	stats := m.tableStats("characters")

	cur, err := db.Collection("characters").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query characters: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Character
	for cur.Next(ctx) {
		var mc MongoCharacter
		if err := cur.Decode(&mc); err != nil {
			stats.Errors++
			continue
		}
		stats.Read++

		c, err := m.convertCharacter(guildID, mc)
		if err != nil {
			slog.Warn("Skipping legacy character", slog.String("type", "sys"), slog.Any("error", err))
			stats.Skipped++
			continue
		}
		batch = append(batch, c)

		if len(batch) >= m.batchSize {
			if err := insertBatch(ctx, m.pgDB, &batch, stats); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return insertBatch(ctx, m.pgDB, &batch, stats)
}

func (m *Migrator) migrateQuests(ctx context.Context, guildID snowflake.ID, db *mongo.Database) error {
	stats := m.tableStats("quests")

	cur, err := db.Collection("quests").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query quests: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Quest
	for cur.Next(ctx) {
		var mq MongoQuest
		if err := cur.Decode(&mq); err != nil {
			stats.Errors++
			continue
		}
		stats.Read++

		q, err := m.convertQuest(guildID, mq)
		if err != nil {
			slog.Warn("Skipping legacy quest", slog.String("type", "sys"), slog.Any("error", err))
			stats.Skipped++
			continue
		}
		batch = append(batch, q)

		if len(batch) >= m.batchSize {
			if err := insertBatch(ctx, m.pgDB, &batch, stats); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return insertBatch(ctx, m.pgDB, &batch, stats)
}

func (m *Migrator) migrateSummaries(ctx context.Context, guildID snowflake.ID, db *mongo.Database) error {
	stats := m.tableStats("summaries")

	cur, err := db.Collection("summaries").Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query summaries: %w", err)
	}
	defer cur.Close(ctx)

	var batch []*models.Summary
	for cur.Next(ctx) {
		var ms MongoSummary
		if err := cur.Decode(&ms); err != nil {
			stats.Errors++
			continue
		}
		stats.Read++

		s, err := m.convertSummary(guildID, ms)
		if err != nil {
			slog.Warn("Skipping legacy summary", slog.String("type", "sys"), slog.Any("error", err))
			stats.Skipped++
			continue
		}
		batch = append(batch, s)

		if len(batch) >= m.batchSize {
			if err := insertBatch(ctx, m.pgDB, &batch, stats); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return insertBatch(ctx, m.pgDB, &batch, stats)
}

// insertBatch upserts the pending batch on id so re-running the migration is
// safe, then resets the batch slice.
func insertBatch[T any](ctx context.Context, db *bun.DB, batch *[]T, stats *TableStats) error {
	if len(*batch) == 0 {
		return nil
	}
	_, err := db.NewInsert().
		Model(batch).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		stats.Errors += len(*batch)
		return fmt.Errorf("batch insert failed: %w", err)
	}
	stats.Migrated += len(*batch)
	*batch = (*batch)[:0]
	return nil
}

func (m *Migrator) tableStats(name string) *TableStats {
	if m.stats.Tables[name] == nil {
		m.stats.Tables[name] = &TableStats{}
	}
	return m.stats.Tables[name]
}

// Stats returns the counters accumulated so far.
func (m *Migrator) Stats() MigrationStats {
	return m.stats
}

func (m *Migrator) logFinalStats() {
	took := m.stats.EndTime.Sub(m.stats.StartTime)
	for name, t := range m.stats.Tables {
		slog.Info("Migration table finished",
			slog.String("type", "sys"),
			slog.String("table", name),
			slog.Int("read", t.Read),
			slog.Int("migrated", t.Migrated),
			slog.Int("skipped", t.Skipped),
			slog.Int("errors", t.Errors))
	}
	slog.Info("Legacy migration completed",
		slog.String("type", "sys"),
		slog.Int("guilds", m.stats.Guilds),
		slog.Duration("took", took))
}
