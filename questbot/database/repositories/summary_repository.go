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

type SummaryRepository interface {
	GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Summary, error)
	GetByQuest(ctx context.Context, guildID snowflake.ID, questID string) ([]*models.Summary, error)
	Upsert(ctx context.Context, s *models.Summary) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

type summaryRepository struct {
	db *bun.DB
}

func NewSummaryRepository(db *bun.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

func (r *summaryRepository) GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Summary, error) {
	s := new(models.Summary)
	err := r.db.NewSelect().
		Model(s).
		Where("id = ?", id).
		Where("guild_id = ?", guildID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("summary %s: %w", id, quest.ErrNotFound)
		}
		return nil, fmt.Errorf("get summary %s: %w: %v", id, quest.ErrStoreUnavailable, err)
	}
	return s, nil
}

func (r *summaryRepository) GetByQuest(ctx context.Context, guildID snowflake.ID, questID string) ([]*models.Summary, error) {
	var summaries []*models.Summary
	err := r.db.NewSelect().
		Model(&summaries).
		Where("guild_id = ?", guildID).
		Where("quest_id = ?", questID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get quest summaries: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return summaries, nil
}

func (r *summaryRepository) Upsert(ctx context.Context, s *models.Summary) error {
	_, err := r.db.NewInsert().
		Model(s).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert summary %s: %w: %v", s.ID, quest.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *summaryRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Summary)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("summary id exists: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return exists, nil
}
