package handlers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/services"
)

const telemetryTimeout = 5 * time.Second

// Telemetry listens to gateway traffic and folds it into per-member
// engagement counters. Counters are mutated through the guild cache, so
// they reach the store on the next flush cycle rather than per event.
type Telemetry struct {
	quests *services.QuestService

	mu         sync.Mutex
	voiceJoins map[voiceKey]time.Time
}

type voiceKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

func NewTelemetry(quests *services.QuestService) *Telemetry {
	return &Telemetry{
		quests:     quests,
		voiceJoins: make(map[voiceKey]time.Time),
	}
}

func (t *Telemetry) OnMessageCreate(e *events.MessageCreate) {
	if e.GuildID == nil || e.Message.Author.Bot {
		return
	}
	t.bump(*e.GuildID, e.Message.Author.ID, e.Message.Author.Username, func(u *models.User) {
		u.MessageCount++
	})
}

func (t *Telemetry) OnReactionAdd(e *events.GuildMessageReactionAdd) {
	if e.Member.User.Bot {
		return
	}
	t.bump(e.GuildID, e.UserID, e.Member.User.Username, func(u *models.User) {
		u.ReactionCount++
	})
}

// OnVoiceStateUpdate tracks channel joins and credits whole minutes on
// leave. Channel-to-channel moves keep the original join time.
func (t *Telemetry) OnVoiceStateUpdate(e *events.GuildVoiceStateUpdate) {
	if e.Member.User.Bot {
		return
	}

	key := voiceKey{GuildID: e.VoiceState.GuildID, UserID: e.VoiceState.UserID}

	t.mu.Lock()
	joinedAt, tracked := t.voiceJoins[key]
	if e.VoiceState.ChannelID != nil {
		if !tracked {
			t.voiceJoins[key] = time.Now()
		}
		t.mu.Unlock()
		return
	}
	delete(t.voiceJoins, key)
	t.mu.Unlock()

	if !tracked {
		return
	}

	minutes := int64(time.Since(joinedAt).Minutes())
	if minutes <= 0 {
		return
	}

	t.bump(e.VoiceState.GuildID, e.VoiceState.UserID, e.Member.User.Username, func(u *models.User) {
		u.VoiceMinutes += minutes
	})
}

func (t *Telemetry) bump(guildID, discordID snowflake.ID, username string, apply func(*models.User)) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
	defer cancel()

	u, err := t.quests.EnsureUser(ctx, guildID, discordID, username)
	if err != nil {
		slog.Error("Failed to resolve member profile",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID.String()),
			slog.String("user_id", discordID.String()),
			slog.Any("error", err))
		return
	}

	if err := t.quests.MutateUser(ctx, guildID, u.ID, func(u *models.User) error {
		apply(u)
		return nil
	}); err != nil {
		slog.Error("Failed to record engagement",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID.String()),
			slog.String("user_id", discordID.String()),
			slog.Any("error", err))
	}
}
