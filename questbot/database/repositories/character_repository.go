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

type CharacterRepository interface {
	GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Character, error)
	GetByOwner(ctx context.Context, guildID snowflake.ID, ownerID string) ([]*models.Character, error)
	GetByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Character, error)
	Upsert(ctx context.Context, c *models.Character) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

type characterRepository struct {
	db *bun.DB
}

func NewCharacterRepository(db *bun.DB) CharacterRepository {
	return &characterRepository{db: db}
}

func (r *characterRepository) GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.Character, error) {
	c := new(models.Character)
	err := r.db.NewSelect().
		Model(c).
		Where("id = ?", id).
		Where("guild_id = ?", guildID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("character %s: %w", id, quest.ErrNotFound)
		}
		return nil, fmt.Errorf("get character %s: %w: %v", id, quest.ErrStoreUnavailable, err)
	}
	return c, nil
}

func (r *characterRepository) GetByOwner(ctx context.Context, guildID snowflake.ID, ownerID string) ([]*models.Character, error) {
	var chars []*models.Character
	err := r.db.NewSelect().
		Model(&chars).
		Where("guild_id = ?", guildID).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get owner characters: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return chars, nil
}

func (r *characterRepository) GetByGuild(ctx context.Context, guildID snowflake.ID) ([]*models.Character, error) {
	var chars []*models.Character
	err := r.db.NewSelect().
		Model(&chars).
		Where("guild_id = ?", guildID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get guild characters: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return chars, nil
}

func (r *characterRepository) Upsert(ctx context.Context, c *models.Character) error {
	_, err := r.db.NewInsert().
		Model(c).
		On("CONFLICT (id) DO UPDATE").
		Set("owner_id = EXCLUDED.owner_id").
		Set("name = EXCLUDED.name").
		Set("class = EXCLUDED.class").
		Set("level = EXCLUDED.level").
		Set("retired = EXCLUDED.retired").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert character %s: %w: %v", c.ID, quest.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *characterRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Character)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("character id exists: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return exists, nil
}
