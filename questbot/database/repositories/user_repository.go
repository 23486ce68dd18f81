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

type UserRepository interface {
	GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.User, error)
	GetByDiscordID(ctx context.Context, guildID snowflake.ID, discordID snowflake.ID) (*models.User, error)
	GetTopByEngagement(ctx context.Context, guildID snowflake.ID, limit int) ([]*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
	ExistsID(ctx context.Context, id string) (bool, error)
}

type userRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, guildID snowflake.ID, id string) (*models.User, error) {
	u := new(models.User)
	err := r.db.NewSelect().
		Model(u).
		Where("id = ?", id).
		Where("guild_id = ?", guildID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, quest.ErrNotFound)
		}
		return nil, fmt.Errorf("get user %s: %w: %v", id, quest.ErrStoreUnavailable, err)
	}
	return u, nil
}

func (r *userRepository) GetByDiscordID(ctx context.Context, guildID snowflake.ID, discordID snowflake.ID) (*models.User, error) {
	u := new(models.User)
	err := r.db.NewSelect().
		Model(u).
		Where("guild_id = ?", guildID).
		Where("discord_id = ?", discordID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("member %s in guild %s: %w", discordID, guildID, quest.ErrNotFound)
		}
		return nil, fmt.Errorf("get member %s: %w: %v", discordID, quest.ErrStoreUnavailable, err)
	}
	return u, nil
}

// GetTopByEngagement orders guild members by total engagement score
// (messages + reactions + voice minutes) for the leaderboard command.
func (r *userRepository) GetTopByEngagement(ctx context.Context, guildID snowflake.ID, limit int) ([]*models.User, error) {
	var users []*models.User
	err := r.db.NewSelect().
		Model(&users).
		Where("guild_id = ?", guildID).
		OrderExpr("message_count + reaction_count + voice_minutes DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get engagement leaderboard: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return users, nil
}

func (r *userRepository) Upsert(ctx context.Context, u *models.User) error {
	_, err := r.db.NewInsert().
		Model(u).
		On("CONFLICT (id) DO UPDATE").
		Set("username = EXCLUDED.username").
		Set("is_referee = EXCLUDED.is_referee").
		Set("message_count = EXCLUDED.message_count").
		Set("reaction_count = EXCLUDED.reaction_count").
		Set("voice_minutes = EXCLUDED.voice_minutes").
		Set("character_ids = EXCLUDED.character_ids").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w: %v", u.ID, quest.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *userRepository) ExistsID(ctx context.Context, id string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("user id exists: %w: %v", quest.ErrStoreUnavailable, err)
	}
	return exists, nil
}
