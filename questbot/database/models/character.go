package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

type Character struct {
	bun.BaseModel `bun:"table:characters,alias:c"`

	ID      string       `bun:"id,pk"`
	GuildID snowflake.ID `bun:"guild_id,notnull"`
	OwnerID string       `bun:"owner_id,notnull"`

	Name    string `bun:"name,notnull"`
	Class   string `bun:"class"`
	Level   int    `bun:"level,notnull,default:1"`
	Retired bool   `bun:"retired,notnull,default:false"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (c *Character) AggregateKind() AggregateKind { return KindCharacter }
func (c *Character) AggregateID() string          { return c.ID }

func (c *Character) Clone() Aggregate {
	cp := *c
	return &cp
}
