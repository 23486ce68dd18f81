package quest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nonagon/questbot/questbot/database/models"
)

// Entity ids are a four-letter kind prefix followed by a body. Two body
// formats are accepted on read: the postal format (letter-digit alternating,
// e.g. QUESH3X1T7) and the legacy all-numeric format (e.g. QUES1042) that
// predates it. Only postal bodies are generated going forward.
var (
	postalBodyPattern = regexp.MustCompile(`^[A-Z]\d[A-Z]\d[A-Z]\d$`)
	legacyBodyPattern = regexp.MustCompile(`^\d+$`)
)

const prefixLen = 4

// ID is a typed entity identifier. Equality and map keying are by the full
// string; an ID is immutable once assigned.
type ID string

func (id ID) String() string { return string(id) }

// Prefix returns the four-letter kind prefix.
func (id ID) Prefix() string {
	if len(id) < prefixLen {
		return ""
	}
	return string(id[:prefixLen])
}

// Body returns the part after the kind prefix.
func (id ID) Body() string {
	if len(id) < prefixLen {
		return ""
	}
	return string(id[prefixLen:])
}

// Legacy reports whether the id uses the numeric pre-postal body format.
func (id ID) Legacy() bool {
	return legacyBodyPattern.MatchString(id.Body())
}

// Kind resolves the aggregate kind from the prefix, or "" if unknown.
func (id ID) Kind() models.AggregateKind {
	switch id.Prefix() {
	case "QUES":
		return models.KindQuest
	case "USER":
		return models.KindUser
	case "CHAR":
		return models.KindCharacter
	case "SUMM":
		return models.KindSummary
	}
	return ""
}

// ParseID normalizes raw input into an id of the given kind. Bare bodies get
// the kind prefix added; full ids must carry the matching prefix. Input is
// case-folded to upper before validation.
func ParseID(kind models.AggregateKind, raw string) (ID, error) {
	prefix := kind.IDPrefix()
	if prefix == "" {
		return "", fmt.Errorf("parse id: unknown aggregate kind %q", kind)
	}

	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", fmt.Errorf("parse id: empty value: %w", ErrNotFound)
	}

	body := cleaned
	if strings.HasPrefix(cleaned, prefix) {
		body = cleaned[prefixLen:]
	}

	if !postalBodyPattern.MatchString(body) && !legacyBodyPattern.MatchString(body) {
		return "", fmt.Errorf("parse id: %q is not a postal or legacy %s id", raw, prefix)
	}
	return ID(prefix + body), nil
}
