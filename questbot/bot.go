package questbot

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	discache "github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
	"github.com/nonagon/questbot/questbot/cache"
	"github.com/nonagon/questbot/questbot/database"
	"github.com/nonagon/questbot/questbot/database/repositories"
	"github.com/nonagon/questbot/questbot/quest"
	"github.com/nonagon/questbot/questbot/services"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
		StartTime: time.Now(),
	}
}

// Bot is the composition root. The guild cache table, flusher and generator
// are constructed once here and injected into command handlers; there is no
// ambient global engine state.
type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string
	StartTime time.Time

	DB    *database.DB
	Store *repositories.Store

	GuildCache *cache.GuildTable
	Flusher    *cache.Flusher
	Lifecycle  *quest.Lifecycle
	Generator  *quest.Generator

	Quests      *services.QuestService
	Lookup      *services.LookupService
	Spaces      *services.SpacesService
	Leaderboard *services.LeaderboardImageService
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(
			gateway.IntentGuilds,
			gateway.IntentGuildMessages,
			gateway.IntentGuildMessageReactions,
			gateway.IntentGuildVoiceStates,
		)),
		bot.WithCacheConfigOpts(discache.WithCaches(discache.FlagGuilds, discache.FlagVoiceStates)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("Nonagon quest bot is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithListeningActivity("quest signups"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
