package quest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/nonagon/questbot/questbot/database/models"
)

// Postal bodies alternate letter-digit-letter-digit-letter-digit. The
// alphabets drop visually confusable characters (O/I, 0/1), so generated ids
// survive being read aloud at the table. Parsing still accepts the full
// alphabet for ids minted before the restriction.
const (
	postalLetters = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	postalDigits  = "23456789"
	postalBodyLen = 6

	defaultMaxAttempts = 10
)

// IDChecker is the slice of the persistent store the generator collision
// checks against.
type IDChecker interface {
	ExistsID(ctx context.Context, id string) (bool, error)
}

// StagedIDs reports ids already minted into the cache but not yet flushed,
// so two creations inside one flush window cannot collide.
type StagedIDs interface {
	ContainsID(id string) bool
}

// Generator mints collision-checked postal entity ids.
type Generator struct {
	store       IDChecker
	staged      StagedIDs
	maxAttempts int
	mu          sync.Mutex
}

func NewGenerator(store IDChecker, staged StagedIDs) *Generator {
	return &Generator{
		store:       store,
		staged:      staged,
		maxAttempts: defaultMaxAttempts,
	}
}

// SetMaxAttempts overrides the retry bound (useful to exercise the
// exhaustion path in tests).
func (g *Generator) SetMaxAttempts(n int) {
	if n > 0 {
		g.maxAttempts = n
	}
}

// Generate returns a fresh id for the kind. A candidate is rejected if the
// store already holds it or the cache has it staged; after maxAttempts
// rejected candidates it fails with ErrIDSpaceExhausted rather than looping.
func (g *Generator) Generate(ctx context.Context, kind models.AggregateKind) (ID, error) {
	prefix := kind.IDPrefix()
	if prefix == "" {
		return "", fmt.Errorf("generate id: unknown aggregate kind %q", kind)
	}

	// Serialize generation so concurrent creates cannot race the same
	// candidate past the collision check.
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}

		body, err := randomPostalBody()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		candidate := ID(prefix + body)

		if g.staged != nil && g.staged.ContainsID(candidate.String()) {
			continue
		}
		exists, err := g.store.ExistsID(ctx, candidate.String())
		if err != nil {
			return "", fmt.Errorf("generate id: %w: %v", ErrStoreUnavailable, err)
		}
		if exists {
			continue
		}
		return candidate, nil
	}

	return "", fmt.Errorf("generate %s id after %d attempts: %w", prefix, g.maxAttempts, ErrIDSpaceExhausted)
}

func randomPostalBody() (string, error) {
	body := make([]byte, postalBodyLen)
	for i := 0; i < postalBodyLen; i++ {
		alphabet := postalLetters
		if i%2 == 1 {
			alphabet = postalDigits
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		body[i] = alphabet[n.Int64()]
	}
	return string(body), nil
}
