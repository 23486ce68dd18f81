package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/uptrace/bun"
)

// Store is the persistent aggregate repository the cache engine loads from
// and flushes to. It fans out to the per-kind repositories; callers never
// see which table an aggregate lives in.
type Store struct {
	quests     QuestRepository
	users      UserRepository
	characters CharacterRepository
	summaries  SummaryRepository
}

func NewStore(db *bun.DB) *Store {
	return &Store{
		quests:     NewQuestRepository(db),
		users:      NewUserRepository(db),
		characters: NewCharacterRepository(db),
		summaries:  NewSummaryRepository(db),
	}
}

func (s *Store) Quests() QuestRepository         { return s.quests }
func (s *Store) Users() UserRepository           { return s.users }
func (s *Store) Characters() CharacterRepository { return s.characters }
func (s *Store) Summaries() SummaryRepository    { return s.summaries }

// Load fetches one aggregate by kind and id.
func (s *Store) Load(ctx context.Context, guildID snowflake.ID, kind models.AggregateKind, id string) (models.Aggregate, error) {
	switch kind {
	case models.KindQuest:
		return s.quests.GetByID(ctx, guildID, id)
	case models.KindUser:
		return s.users.GetByID(ctx, guildID, id)
	case models.KindCharacter:
		return s.characters.GetByID(ctx, guildID, id)
	case models.KindSummary:
		return s.summaries.GetByID(ctx, guildID, id)
	}
	return nil, fmt.Errorf("load: unknown aggregate kind %q", kind)
}

// Upsert writes one aggregate back, stamping UpdatedAt. The store tolerates
// concurrent upserts of different aggregates from parallel guild flushes;
// same-aggregate writers are serialized upstream by the cache.
func (s *Store) Upsert(ctx context.Context, aggregate models.Aggregate) error {
	now := time.Now()
	switch a := aggregate.(type) {
	case *models.Quest:
		a.UpdatedAt = now
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		return s.quests.Upsert(ctx, a)
	case *models.User:
		a.UpdatedAt = now
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		return s.users.Upsert(ctx, a)
	case *models.Character:
		a.UpdatedAt = now
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		return s.characters.Upsert(ctx, a)
	case *models.Summary:
		a.UpdatedAt = now
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		return s.summaries.Upsert(ctx, a)
	}
	return fmt.Errorf("upsert: unknown aggregate type %T", aggregate)
}

// ExistsID checks every aggregate table for the id. The id generator calls
// this during collision checking; prefixes keep kinds from colliding in
// practice but the full scan keeps the guarantee simple.
func (s *Store) ExistsID(ctx context.Context, id string) (bool, error) {
	checks := []func(context.Context, string) (bool, error){
		s.quests.ExistsID,
		s.users.ExistsID,
		s.characters.ExistsID,
		s.summaries.ExistsID,
	}
	for _, check := range checks {
		exists, err := check(ctx, id)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}
