package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// QuestState is the lifecycle state of a quest. Transitions are owned by the
// quest.Lifecycle component; nothing else writes this field.
type QuestState string

const (
	QuestDraft        QuestState = "DRAFT"
	QuestAnnounced    QuestState = "ANNOUNCED"
	QuestSignupClosed QuestState = "SIGNUP_CLOSED"
	QuestCompleted    QuestState = "COMPLETED"
	QuestCancelled    QuestState = "CANCELLED"
)

// Terminal reports whether no further transition may leave the state.
func (s QuestState) Terminal() bool {
	return s == QuestCompleted || s == QuestCancelled
}

// Signup is a player application on one quest. The (UserID, CharacterID)
// pair is unique within a quest's signup list.
type Signup struct {
	UserID      string    `json:"user_id"`
	CharacterID string    `json:"character_id"`
	SignedUpAt  time.Time `json:"signed_up_at"`
	Selected    bool      `json:"selected"`
}

type Quest struct {
	bun.BaseModel `bun:"table:quests,alias:q"`

	ID        string       `bun:"id,pk"`
	GuildID   snowflake.ID `bun:"guild_id,notnull"`
	RefereeID string       `bun:"referee_id,notnull"`

	// Raw markdown as entered by the referee plus the parsed metadata.
	Raw         string `bun:"raw"`
	Title       string `bun:"title"`
	Description string `bun:"description"`
	ImageURL    string `bun:"image_url"`

	StartingAt    time.Time `bun:"starting_at"`
	DurationHours float64   `bun:"duration_hours"`

	// Discord linkage, opaque to the engine.
	ChannelID snowflake.ID `bun:"channel_id"`
	MessageID snowflake.ID `bun:"message_id"`

	State        QuestState `bun:"state,notnull"`
	Signups      []Signup   `bun:"signups,type:jsonb"`
	LastNudgedAt time.Time  `bun:"last_nudged_at"`
	EndedAt      time.Time  `bun:"ended_at"`

	LinkedQuestIDs   []string `bun:"linked_quest_ids,type:jsonb"`
	LinkedSummaryIDs []string `bun:"linked_summary_ids,type:jsonb"`

	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (q *Quest) AggregateKind() AggregateKind { return KindQuest }
func (q *Quest) AggregateID() string          { return q.ID }

func (q *Quest) Clone() Aggregate {
	cp := *q
	cp.Signups = append([]Signup(nil), q.Signups...)
	cp.LinkedQuestIDs = append([]string(nil), q.LinkedQuestIDs...)
	cp.LinkedSummaryIDs = append([]string(nil), q.LinkedSummaryIDs...)
	return &cp
}

// SignupOpen reports whether new signups are admitted.
func (q *Quest) SignupOpen() bool {
	return q.State == QuestAnnounced
}

// FindSignup returns the signup for the exact (user, character) pair.
func (q *Quest) FindSignup(userID, characterID string) *Signup {
	for i := range q.Signups {
		if q.Signups[i].UserID == userID && q.Signups[i].CharacterID == characterID {
			return &q.Signups[i]
		}
	}
	return nil
}

// HasSignup reports whether the user has any signup, regardless of character.
func (q *Quest) HasSignup(userID string) bool {
	for i := range q.Signups {
		if q.Signups[i].UserID == userID {
			return true
		}
	}
	return false
}

// Roster returns the signups marked selected, in arrival order.
func (q *Quest) Roster() []Signup {
	var roster []Signup
	for _, s := range q.Signups {
		if s.Selected {
			roster = append(roster, s)
		}
	}
	return roster
}

// SummaryNeeded reports whether the quest finished without a write-up.
func (q *Quest) SummaryNeeded() bool {
	return q.State == QuestCompleted && len(q.LinkedSummaryIDs) == 0
}
