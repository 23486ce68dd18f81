package questbot

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/disgoorg/snowflake/v2"
	"github.com/nonagon/questbot/questbot/database"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig         `toml:"log"`
	Bot    BotConfig         `toml:"bot"`
	DB     database.DBConfig `toml:"db"`
	Cache  CacheConfig       `toml:"cache"`
	Legacy LegacyConfig      `toml:"legacy"`
	Spaces SpacesConfig      `toml:"spaces"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// CacheConfig tunes the write-back engine. Zero values fall back to the
// cache package defaults.
type CacheConfig struct {
	FlushIntervalSeconds int `toml:"flush_interval_seconds"`
	GuildTimeoutSeconds  int `toml:"guild_timeout_seconds"`
}

// LegacyConfig points at the pre-rewrite MongoDB deployment that held one
// database per guild. Only the -migrate path reads it.
type LegacyConfig struct {
	MongoURI string `toml:"mongo_uri"`
}

// SpacesConfig configures quest cover image storage on DO Spaces.
type SpacesConfig struct {
	Key       string `toml:"key"`
	Secret    string `toml:"secret"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	ImageRoot string `toml:"image_root"`
}
