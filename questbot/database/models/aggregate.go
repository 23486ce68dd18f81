package models

// AggregateKind discriminates the small fixed set of cached aggregate types.
type AggregateKind string

const (
	KindQuest     AggregateKind = "quest"
	KindUser      AggregateKind = "user"
	KindCharacter AggregateKind = "character"
	KindSummary   AggregateKind = "summary"
)

// IDPrefix returns the four-letter entity id prefix for the kind.
func (k AggregateKind) IDPrefix() string {
	switch k {
	case KindQuest:
		return "QUES"
	case KindUser:
		return "USER"
	case KindCharacter:
		return "CHAR"
	case KindSummary:
		return "SUMM"
	}
	return ""
}

// Aggregate is the unit of caching, locking and persistence. Each concrete
// model is a typed record; the cache keys entries by kind+id rather than
// holding untyped maps.
type Aggregate interface {
	AggregateKind() AggregateKind
	AggregateID() string
	// Clone returns a deep enough copy that the flush loop can serialize it
	// while the command path keeps mutating the cached original.
	Clone() Aggregate
}
