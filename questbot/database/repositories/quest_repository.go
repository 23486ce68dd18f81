package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/quest"
	"github.com/uptrace/bun"
)

type QuestRepository interface {
	GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Quest, error)
	GetByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Quest, error)
	GetActiveByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Quest, error)
	Upsert(ctx context.Context, q *models.Quest) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

type questRepository struct {
	db *bun.DB
}

func NewQuestRepository(db *bun.DB) QuestRepository {
	return &questRepository{db: db}
}

func (r *questRepository) GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Quest, error) {
	q := new(models.Quest)
	err := r.db.NewSelect().
		Model(q).
		Where("id = ?", id).
		Where("guild_id = ?", guildID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quest %s: %w", id, quest.ErrNotFound)
		}
		return nil, fmt.Errorf("get quest %s: %w: %v", id, quest.ErrStoreUnavailable, err)
	}
	return q, nil
}

func (r *questRepository) GetByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Quest, error) {
	var quests []*models.Quest
	err := r.db.NewSelect().
		Model(&quests).
		Where("guild_id = ?", guildID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get guild quests: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return quests, nil
}

func (r *questRepository) GetActiveByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Quest, error) {
	var quests []*models.Quest
	err := r.db.NewSelect().
		Model(&quests).
		Where("guild_id = ?", guildID).
		Where("state IN (?)", bun.In([]models.QuestState{models.QuestAnnounced, models.QuestSignupClosed})).
		Order("starting_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get active quests: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return quests, nil
}

func (r *questRepository) Upsert(ctx context.Context, q *models.Quest) error {
	_, err := r.db.NewInsert().
		Model(q).
		On("CONFLICT (id) DO UPDATE").
		Set("referee_id = EXCLUDED.referee_id").
		Set("raw = EXCLUDED.raw").
		Set("title = EXCLUDED.title").
		Set("description = EXCLUDED.description").
		Set("image_url = EXCLUDED.image_url").
		Set("starting_at = EXCLUDED.starting_at").
		Set("duration_hours = EXCLUDED.duration_hours").
		Set("channel_id = EXCLUDED.channel_id").
		Set("message_id = EXCLUDED.message_id").
		Set("state = EXCLUDED.state").
		Set("signups = EXCLUDED.signups").
		Set("last_nudged_at = EXCLUDED.last_nudged_at").
		Set("ended_at = EXCLUDED.ended_at").
		Set("linked_quest_ids = EXCLUDED.linked_quest_ids").
		Set("linked_summary_ids = EXCLUDED.linked_summary_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert quest %s: %w: %v", q.ID, quest.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *questRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Quest)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("quest id exists: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return exists, nil
}
