package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// Summary is a player or referee write-up of a finished quest. A quest is
// never hard-deleted while summaries still link to it.
type Summary struct {
	bun.BaseModel `bun:"table:summaries,alias:s"`

	ID       string       `bun:"id,pk"`
	GuildID  snowflake.ID `bun:"guild_id,notnull"`
	QuestID  string       `bun:"quest_id,notnull"`
	AuthorID string       `bun:"author_id,notnull"`

	Title   string `bun:"title"`
	Content string `bun:"content,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (s *Summary) AggregateKind() AggregateKind { return KindSummary }
func (s *Summary) AggregateID() string          { return s.ID }

func (s *Summary) Clone() Aggregate {
	cp := *s
	return &cp
}
