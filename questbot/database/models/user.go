package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// User is the per-guild member profile. It is provisioned lazily on first
// interaction and carries the engagement counters the stats commands read.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string       `bun:"id,pk"`
	GuildID   snowflake.ID `bun:"guild_id,notnull"`
	DiscordID snowflake.ID `bun:"discord_id,notnull"`
	Username  string       `bun:"username,notnull"`

	IsReferee bool `bun:"is_referee,notnull,default:false"`

	// Engagement telemetry
	MessageCount  int64 `bun:"message_count,notnull,default:0"`
	ReactionCount int64 `bun:"reaction_count,notnull,default:0"`
	VoiceMinutes  int64 `bun:"voice_minutes,notnull,default:0"`

	CharacterIDs []string `bun:"character_ids,type:jsonb"`

	JoinedAt  time.Time `bun:"joined_at"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (u *User) AggregateKind() AggregateKind { return KindUser }
func (u *User) AggregateID() string          { return u.ID }

func (u *User) Clone() Aggregate {
	cp := *u
	cp.CharacterIDs = append([]string(nil), u.CharacterIDs...)
	return &cp
}

// OwnsCharacter reports whether the character belongs to this user.
func (u *User) OwnsCharacter(characterID string) bool {
	for _, id := range u.CharacterIDs {
		if id == characterID {
			return true
		}
	}
	return false
}
