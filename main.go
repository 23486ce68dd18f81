package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"github.com/nonagon/questbot/questbot"
	"github.com/nonagon/questbot/questbot/cache"
	"github.com/nonagon/questbot/questbot/commands"
	"github.com/nonagon/questbot/questbot/database"
	"github.com/nonagon/questbot/questbot/database/repositories"
	"github.com/nonagon/questbot/questbot/handlers"
	"github.com/nonagon/questbot/questbot/logger"
	"github.com/nonagon/questbot/questbot/migration"
	"github.com/nonagon/questbot/questbot/quest"
	"github.com/nonagon/questbot/questbot/services"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	shouldMigrate := flag.Bool("migrate", false, "Migrate legacy per-guild Mongo databases and exit")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := questbot.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	customHandler := logger.NewHandler(cfg.Log.Level)
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting Nonagon quest bot",
		slog.String("version", version),
		slog.String("commit", commit))

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	store := repositories.NewStore(db.BunDB())

	if *shouldMigrate {
		if err := runLegacyMigration(ctx, cfg, db); err != nil {
			slog.Error("Legacy migration failed", slog.Any("error", err))
			os.Exit(-1)
		}
		return
	}

	b := questbot.New(*cfg, version, commit)
	b.DB = db
	b.Store = store

	b.GuildCache = cache.NewGuildTable(store)
	b.Lifecycle = quest.NewLifecycle()
	b.Generator = quest.NewGenerator(store, b.GuildCache)

	flushInterval := cache.DefaultFlushInterval
	if cfg.Cache.FlushIntervalSeconds > 0 {
		flushInterval = time.Duration(cfg.Cache.FlushIntervalSeconds) * time.Second
	}
	guildTimeout := cache.DefaultGuildFlushTimeout
	if cfg.Cache.GuildTimeoutSeconds > 0 {
		guildTimeout = time.Duration(cfg.Cache.GuildTimeoutSeconds) * time.Second
	}
	b.Flusher = cache.NewFlusher(b.GuildCache, store, flushInterval, guildTimeout)

	b.Quests = services.NewQuestService(b.GuildCache, store, b.Generator, b.Lifecycle)
	b.Lookup = services.NewLookupService(store)
	b.Spaces = services.NewSpacesService(
		cfg.Spaces.Key,
		cfg.Spaces.Secret,
		cfg.Spaces.Region,
		cfg.Spaces.Bucket,
		cfg.Spaces.ImageRoot,
	)
	b.Leaderboard = services.NewLeaderboardImageService()

	h := handler.New()

	commands.NewQuestHandler(b).Register(h)
	commands.NewCharacterHandler(b).Register(h)
	commands.NewSummaryHandler(b).Register(h)
	h.Command("/profile", handlers.WrapWithLogging("profile", commands.ProfileHandler(b)))
	h.Command("/leaderboard", handlers.WrapWithLogging("leaderboard", commands.LeaderboardHandler(b)))
	h.Command("/metrics", handlers.WrapWithLogging("metrics", commands.MetricsHandler(b)))
	h.Command("/version", commands.VersionHandler(b))

	telemetry := handlers.NewTelemetry(b.Quests)

	if err = b.SetupBot(
		h,
		bot.NewListenerFunc(b.OnReady),
		bot.NewListenerFunc(telemetry.OnMessageCreate),
		bot.NewListenerFunc(telemetry.OnReactionAdd),
		bot.NewListenerFunc(telemetry.OnVoiceStateUpdate),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "bot_setup"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds),
		)
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err),
				slog.String("error_details", fmt.Sprintf("%+v", err)),
				slog.String("component", "command_sync"),
				slog.String("status", "failed"),
			)
		}
	}

	b.Flusher.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		b.Flusher.Stop(ctx)
	}()

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("component", "gateway"),
			slog.String("status", "failed"),
		)
		os.Exit(-1)
	}

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")
}

func runLegacyMigration(ctx context.Context, cfg *questbot.Config, db *database.DB) error {
	if cfg.Legacy.MongoURI == "" {
		return fmt.Errorf("legacy.mongo_uri is not configured")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Legacy.MongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to legacy mongo: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()

	return migration.NewMigrator(db.BunDB(), client).MigrateAll(ctx)
}
