package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/cache"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/database/repositories"
	"github.com/nonagon/questbot/questbot/quest"
)

// QuestInput is the referee-provided quest metadata, already extracted from
// the command payload.
type QuestInput struct {
	Raw           string
	Title         string
	Description   string
	StartingAt    time.Time
	DurationHours float64
	ImageURL      string
	ChannelID     snowflake.ID
}

// QuestService drives entity creation and aggregate access for the command
// layer. All reads and writes go through the guild cache; the service never
// touches repositories directly except to resolve a member to their profile
// id on a cold start.
type QuestService struct {
	table     *cache.GuildTable
	store     *repositories.Store
	generator *quest.Generator
	lifecycle *quest.Lifecycle
	now       func() time.Time

	// discord member -> profile entity id, per guild. Warm lookups skip the
	// store entirely.
	userIDs sync.Map // "guildID/discordID" -> string
}

func NewQuestService(table *cache.GuildTable, store *repositories.Store, generator *quest.Generator, lifecycle *quest.Lifecycle) *QuestService {
	return &QuestService{
		table:     table,
		store:     store,
		generator: generator,
		lifecycle: lifecycle,
		now:       time.Now,
	}
}

func (s *QuestService) Lifecycle() *quest.Lifecycle { return s.lifecycle }

// EnsureUser resolves a guild member to their cached profile, provisioning
// one lazily on first interaction.
func (s *QuestService) EnsureUser(ctx context.Context, guildID snowflake.ID, discordID snowflake.ID, username string) (*models.User, error) {
	id, fresh, err := s.resolveUserID(ctx, guildID, discordID)
	if err != nil {
		return nil, err
	}

	aggregate, err := s.table.GetOrCreate(ctx, guildID, models.KindUser, id, func() models.Aggregate {
		return &models.User{
			ID:        id,
			GuildID:   guildID,
			DiscordID: discordID,
			Username:  username,
			JoinedAt:  s.now(),
		}
	})
	if err != nil {
		if fresh {
			s.userIDs.Delete(userKey(guildID, discordID))
		}
		return nil, err
	}
	return aggregate.(*models.User), nil
}

func (s *QuestService) resolveUserID(ctx context.Context, guildID snowflake.ID, discordID snowflake.ID) (id string, fresh bool, err error) {
	key := userKey(guildID, discordID)
	if cached, ok := s.userIDs.Load(key); ok {
		return cached.(string), false, nil
	}

	u, err := s.store.Users().GetByDiscordID(ctx, guildID, discordID)
	switch {
	case err == nil:
		s.userIDs.Store(key, u.ID)
		return u.ID, false, nil
	case isNotFound(err):
		newID, genErr := s.generator.Generate(ctx, models.KindUser)
		if genErr != nil {
			return "", false, genErr
		}
		s.userIDs.Store(key, newID.String())
		return newID.String(), true, nil
	default:
		return "", false, err
	}
}

// CreateQuest validates the input, mints a quest id and stages the new
// draft quest in the cache.
func (s *QuestService) CreateQuest(ctx context.Context, guildID snowflake.ID, referee *models.User, input QuestInput) (*models.Quest, error) {
	if err := validateQuestInput(input, s.now()); err != nil {
		return nil, err
	}

	id, err := s.generator.Generate(ctx, models.KindQuest)
	if err != nil {
		return nil, err
	}

	q := &models.Quest{
		ID:            id.String(),
		GuildID:       guildID,
		RefereeID:     referee.ID,
		Raw:           input.Raw,
		Title:         input.Title,
		Description:   input.Description,
		StartingAt:    input.StartingAt,
		DurationHours: input.DurationHours,
		ImageURL:      input.ImageURL,
		ChannelID:     input.ChannelID,
		State:         models.QuestDraft,
		CreatedAt:     s.now(),
	}
	if err := s.table.Put(guildID, q); err != nil {
		return nil, err
	}
	return q, nil
}

// CreateCharacter mints a character for the owner and links it onto their
// profile.
func (s *QuestService) CreateCharacter(ctx context.Context, guildID snowflake.ID, owner *models.User, name, class string) (*models.Character, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("character name cannot be empty")
	}

	id, err := s.generator.Generate(ctx, models.KindCharacter)
	if err != nil {
		return nil, err
	}

	c := &models.Character{
		ID:        id.String(),
		GuildID:   guildID,
		OwnerID:   owner.ID,
		Name:      name,
		Class:     class,
		Level:     1,
		CreatedAt: s.now(),
	}
	if err := s.table.Put(guildID, c); err != nil {
		return nil, err
	}

	err = s.table.Mutate(ctx, guildID, models.KindUser, owner.ID, func(a models.Aggregate) error {
		u := a.(*models.User)
		u.CharacterIDs = append(u.CharacterIDs, c.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// RecordSummary creates the write-up and links it from its quest. The quest
// link is what blocks hard deletion of completed quests with history.
func (s *QuestService) RecordSummary(ctx context.Context, guildID snowflake.ID, author *models.User, questID, title, content string) (*models.Summary, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("summary content cannot be empty")
	}

	parsed, err := quest.ParseID(models.KindQuest, questID)
	if err != nil {
		return nil, err
	}

	id, err := s.generator.Generate(ctx, models.KindSummary)
	if err != nil {
		return nil, err
	}

	sum := &models.Summary{
		ID:        id.String(),
		GuildID:   guildID,
		QuestID:   parsed.String(),
		AuthorID:  author.ID,
		Title:     title,
		Content:   content,
		CreatedAt: s.now(),
	}

	err = s.table.Mutate(ctx, guildID, models.KindQuest, parsed.String(), func(a models.Aggregate) error {
		q := a.(*models.Quest)
		q.LinkedSummaryIDs = append(q.LinkedSummaryIDs, sum.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.table.Put(guildID, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// GetQuest reads a quest through the cache.
func (s *QuestService) GetQuest(ctx context.Context, guildID snowflake.ID, questID string) (*models.Quest, error) {
	parsed, err := quest.ParseID(models.KindQuest, questID)
	if err != nil {
		return nil, err
	}
	aggregate, err := s.table.Get(ctx, guildID, models.KindQuest, parsed.String())
	if err != nil {
		return nil, err
	}
	return aggregate.(*models.Quest), nil
}

// MutateQuest runs fn against the cached quest under the aggregate lock and
// marks the entry dirty on success.
func (s *QuestService) MutateQuest(ctx context.Context, guildID snowflake.ID, questID string, fn func(*models.Quest) error) error {
	parsed, err := quest.ParseID(models.KindQuest, questID)
	if err != nil {
		return err
	}
	return s.table.Mutate(ctx, guildID, models.KindQuest, parsed.String(), func(a models.Aggregate) error {
		return fn(a.(*models.Quest))
	})
}

// MutateUser is MutateQuest's sibling for profile aggregates, used by the
// telemetry listeners.
func (s *QuestService) MutateUser(ctx context.Context, guildID snowflake.ID, userID string, fn func(*models.User) error) error {
	return s.table.Mutate(ctx, guildID, models.KindUser, userID, func(a models.Aggregate) error {
		return fn(a.(*models.User))
	})
}

func validateQuestInput(input QuestInput, now time.Time) error {
	if strings.TrimSpace(input.Title) == "" {
		return fmt.Errorf("quest title cannot be empty")
	}
	if input.DurationHours > 0 && input.DurationHours < 0.25 {
		return fmt.Errorf("duration must be at least 15 minutes")
	}
	if !input.StartingAt.IsZero() && input.StartingAt.Before(now) {
		return fmt.Errorf("starting time must be in the future")
	}
	if input.ImageURL != "" && !strings.HasPrefix(input.ImageURL, "http://") && !strings.HasPrefix(input.ImageURL, "https://") {
		return fmt.Errorf("image URL must start with http:// or https://")
	}
	return nil
}

func userKey(guildID, discordID snowflake.ID) string {
	return guildID.String() + "/" + discordID.String()
}

func isNotFound(err error) bool {
	return errors.Is(err, quest.ErrNotFound)
}
