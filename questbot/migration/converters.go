// converters.go
package migration

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/quest"
)

func (m *Migrator) convertQuest(guildID snowflake.ID, mq MongoQuest) (*models.Quest, error) {
	id, err := quest.ParseID(models.KindQuest, mq.ID)
	if err != nil {
		return nil, fmt.Errorf("quest id %q: %w", mq.ID, err)
	}
	refereeID, err := quest.ParseID(models.KindUser, mq.Referee)
	if err != nil {
		return nil, fmt.Errorf("referee id %q: %w", mq.Referee, err)
	}

	state, err := convertState(mq.State)
	if err != nil {
		return nil, err
	}

	signups := make([]models.Signup, 0, len(mq.Signups))
	for _, ms := range mq.Signups {
		userID, err := quest.ParseID(models.KindUser, ms.User)
		if err != nil {
			return nil, fmt.Errorf("signup user id %q: %w", ms.User, err)
		}
		charID, err := quest.ParseID(models.KindCharacter, ms.Character)
		if err != nil {
			return nil, fmt.Errorf("signup character id %q: %w", ms.Character, err)
		}
		signups = append(signups, models.Signup{
			UserID:      userID.String(),
			CharacterID: charID.String(),
			SignedUpAt:  ms.SignedUpAt,
			Selected:    ms.Selected,
		})
	}

	now := time.Now()
	createdAt := mq.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	return &models.Quest{
		ID:               id.String(),
		GuildID:          guildID,
		RefereeID:        refereeID.String(),
		Raw:              mq.Raw,
		Title:            cleanseString(mq.Title),
		Description:      cleanseString(mq.Description),
		ImageURL:         mq.ImageURL,
		StartingAt:       mq.StartingAt,
		DurationHours:    mq.Duration,
		ChannelID:        parseSnowflake(mq.Channel),
		MessageID:        parseSnowflake(mq.Message),
		State:            state,
		Signups:          signups,
		LastNudgedAt:     mq.LastNudged,
		EndedAt:          mq.EndedAt,
		LinkedQuestIDs:   convertIDList(models.KindQuest, mq.LinkedQuests),
		LinkedSummaryIDs: convertIDList(models.KindSummary, mq.Summaries),
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}, nil
}

func (m *Migrator) convertUser(guildID snowflake.ID, mu MongoUser) (*models.User, error) {
	id, err := quest.ParseID(models.KindUser, mu.ID)
	if err != nil {
		return nil, fmt.Errorf("user id %q: %w", mu.ID, err)
	}

	now := time.Now()
	joinedAt := mu.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = now
	}

	return &models.User{
		ID:            id.String(),
		GuildID:       guildID,
		DiscordID:     parseSnowflake(mu.DiscordID),
		Username:      cleanseString(mu.Username),
		IsReferee:     mu.IsReferee,
		MessageCount:  mu.Messages,
		ReactionCount: mu.Reactions,
		VoiceMinutes:  mu.VoiceMins,
		CharacterIDs:  convertIDList(models.KindCharacter, mu.Characters),
		JoinedAt:      joinedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (m *Migrator) convertCharacter(guildID snowflake.ID, mc MongoCharacter) (*models.Character, error) {
	id, err := quest.ParseID(models.KindCharacter, mc.ID)
	if err != nil {
		return nil, fmt.Errorf("character id %q: %w", mc.ID, err)
	}
	ownerID, err := quest.ParseID(models.KindUser, mc.Owner)
	if err != nil {
		return nil, fmt.Errorf("character owner id %q: %w", mc.Owner, err)
	}

	level := mc.Level
	if level < 1 {
		level = 1
	}

	now := time.Now()
	return &models.Character{
		ID:        id.String(),
		GuildID:   guildID,
		OwnerID:   ownerID.String(),
		Name:      cleanseString(mc.Name),
		Class:     cleanseString(mc.Class),
		Level:     level,
		Retired:   mc.Retired,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (m *Migrator) convertSummary(guildID snowflake.ID, ms MongoSummary) (*models.Summary, error) {
	id, err := quest.ParseID(models.KindSummary, ms.ID)
	if err != nil {
		return nil, fmt.Errorf("summary id %q: %w", ms.ID, err)
	}
	questID, err := quest.ParseID(models.KindQuest, ms.Quest)
	if err != nil {
		return nil, fmt.Errorf("summary quest id %q: %w", ms.Quest, err)
	}
	authorID, err := quest.ParseID(models.KindUser, ms.Author)
	if err != nil {
		return nil, fmt.Errorf("summary author id %q: %w", ms.Author, err)
	}

	now := time.Now()
	return &models.Summary{
		ID:        id.String(),
		GuildID:   guildID,
		QuestID:   questID.String(),
		AuthorID:  authorID.String(),
		Title:     cleanseString(ms.Title),
		Content:   ms.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// convertState maps legacy state names onto the current state set. Legacy
// data used OPEN/CLOSED for the announced pair.
func convertState(raw string) (models.QuestState, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DRAFT":
		return models.QuestDraft, nil
	case "ANNOUNCED", "OPEN":
		return models.QuestAnnounced, nil
	case "SIGNUP_CLOSED", "CLOSED":
		return models.QuestSignupClosed, nil
	case "COMPLETED", "DONE":
		return models.QuestCompleted, nil
	case "CANCELLED", "CANCELED":
		return models.QuestCancelled, nil
	default:
		return "", fmt.Errorf("unknown quest state %q", raw)
	}
}

// convertIDList normalizes a legacy id list, silently dropping entries that
// do not parse. Cross-references to malformed ids are not worth failing a
// whole document over.
func convertIDList(kind models.AggregateKind, raw []string) []string {
	var out []string
	for _, r := range raw {
		if id, err := quest.ParseID(kind, r); err == nil {
			out = append(out, id.String())
		}
	}
	return out
}

func parseSnowflake(raw string) snowflake.ID {
	if raw == "" {
		return 0
	}
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0
	}
	return id
}

func cleanseString(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}
