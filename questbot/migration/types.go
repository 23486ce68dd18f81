// types.go
package migration

import (
	"time"
)

// MongoQuest is a quest document as stored by the legacy bot. Ids are
// numeric strings without a kind prefix.
type MongoQuest struct {
	ID           string        `bson:"id"`
	Referee      string        `bson:"referee"`
	Raw          string        `bson:"raw"`
	Title        string        `bson:"title"`
	Description  string        `bson:"description"`
	ImageURL     string        `bson:"image_url"`
	StartingAt   time.Time     `bson:"starting_at"`
	Duration     float64       `bson:"duration"`
	Channel      string        `bson:"channel"`
	Message      string        `bson:"message"`
	State        string        `bson:"state"`
	Signups      []MongoSignup `bson:"signups"`
	LastNudged   time.Time     `bson:"last_nudged"`
	EndedAt      time.Time     `bson:"ended_at"`
	LinkedQuests []string      `bson:"linked_quests"`
	Summaries    []string      `bson:"summaries"`
	CreatedAt    time.Time     `bson:"created_at"`
}

// MongoSignup is one entry of a legacy quest's signup list.
type MongoSignup struct {
	User       string    `bson:"user"`
	Character  string    `bson:"character"`
	SignedUpAt time.Time `bson:"signed_up_at"`
	Selected   bool      `bson:"selected"`
}

// MongoUser is a member profile document from the legacy bot.
type MongoUser struct {
	ID         string    `bson:"id"`
	DiscordID  string    `bson:"discord_id"`
	Username   string    `bson:"username"`
	IsReferee  bool      `bson:"is_referee"`
	Messages   int64     `bson:"messages"`
	Reactions  int64     `bson:"reactions"`
	VoiceMins  int64     `bson:"voice_minutes"`
	Characters []string  `bson:"characters"`
	JoinedAt   time.Time `bson:"joined_at"`
}

// MongoCharacter is a character document from the legacy bot.
type MongoCharacter struct {
	ID        string    `bson:"id"`
	Owner     string    `bson:"owner"`
	Name      string    `bson:"name"`
	Class     string    `bson:"class"`
	Level     int       `bson:"level"`
	Retired   bool      `bson:"retired"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoSummary is a quest write-up document from the legacy bot.
type MongoSummary struct {
	ID        string    `bson:"id"`
	Quest     string    `bson:"quest"`
	Author    string    `bson:"author"`
	Title     string    `bson:"title"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

// TableStats tracks per-collection migration counters.
type TableStats struct {
	Read     int
	Migrated int
	Skipped  int
	Errors   int
}

// MigrationStats aggregates counters for the whole run.
type MigrationStats struct {
	Guilds    int
	Tables    map[string]*TableStats
	StartTime time.Time
	EndTime   time.Time
}
