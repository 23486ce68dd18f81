package quest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nonagon/questbot/questbot/database/models"
)

// fakeIDStore reports every id it has been probed for before as taken, the
// way the real store reports persisted ids. Generate must therefore never
// hand out the same id twice against one store.
type fakeIDStore struct {
	existing map[string]bool
	err      error
	calls    int
}

func (f *fakeIDStore) ExistsID(_ context.Context, id string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	taken := f.existing[id]
	f.existing[id] = true
	return taken, nil
}

type fakeStaged map[string]bool

func (f fakeStaged) ContainsID(id string) bool { return f[id] }

func TestGenerateProducesValidPostalIDs(t *testing.T) {
	g := NewGenerator(&fakeIDStore{}, nil)

	seen := make(map[ID]bool)
	for i := 0; i < 10000; i++ {
		id, err := g.Generate(context.Background(), models.KindQuest)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		// The store marks probed ids taken, so a repeat means Generate
		// returned an id the store reported as existing.
		if seen[id] {
			t.Fatalf("Generate() repeated id %s within run", id)
		}
		seen[id] = true

		if id.Prefix() != "QUES" {
			t.Fatalf("Generate() prefix = %q, want QUES", id.Prefix())
		}
		if id.Legacy() {
			t.Fatalf("Generate() produced legacy-form id %s", id)
		}
		if !postalBodyPattern.MatchString(id.Body()) {
			t.Fatalf("Generate() body %q is not postal form", id.Body())
		}
		for _, c := range id.Body() {
			if strings.ContainsRune("OI01", c) {
				t.Fatalf("Generate() body %q contains confusable character %c", id.Body(), c)
			}
		}
	}
}

func TestGenerateRetriesOnStoreCollision(t *testing.T) {
	// Every candidate collides until the store has been asked three times.
	probe := &collidingStore{failures: 3}
	g := NewGenerator(probe, nil)

	id, err := g.Generate(context.Background(), models.KindUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if probe.calls != 4 {
		t.Errorf("Generate() store calls = %d, want 4", probe.calls)
	}
	if id.Prefix() != "USER" {
		t.Errorf("Generate() prefix = %q, want USER", id.Prefix())
	}
}

type collidingStore struct {
	failures int
	calls    int
}

func (c *collidingStore) ExistsID(context.Context, string) (bool, error) {
	c.calls++
	return c.calls <= c.failures, nil
}

func TestGenerateSkipsStagedIDs(t *testing.T) {
	store := &fakeIDStore{}
	staged := &stagedFirstN{n: 2}
	g := NewGenerator(store, staged)

	id, err := g.Generate(context.Background(), models.KindCharacter)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	// The first two candidates were staged and never reached the store.
	if staged.calls != 3 {
		t.Errorf("staged probed %d times, want 3", staged.calls)
	}
	if store.calls != 1 {
		t.Errorf("store probed %d times, want 1", store.calls)
	}
	if id == "" {
		t.Fatal("Generate() returned empty id")
	}
}

// stagedFirstN reports the first n candidates it sees as staged.
type stagedFirstN struct {
	n     int
	calls int
}

func (s *stagedFirstN) ContainsID(string) bool {
	s.calls++
	return s.calls <= s.n
}

func TestGenerateExhaustion(t *testing.T) {
	g := NewGenerator(&collidingStore{failures: 1 << 30}, nil)
	g.SetMaxAttempts(5)

	_, err := g.Generate(context.Background(), models.KindQuest)
	if !errors.Is(err, ErrIDSpaceExhausted) {
		t.Fatalf("Generate() error = %v, want ErrIDSpaceExhausted", err)
	}
}

func TestGenerateStoreFailure(t *testing.T) {
	g := NewGenerator(&fakeIDStore{err: errors.New("connection refused")}, nil)

	_, err := g.Generate(context.Background(), models.KindQuest)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("Generate() error = %v, want ErrStoreUnavailable", err)
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGenerator(&fakeIDStore{}, nil)
	if _, err := g.Generate(ctx, models.KindQuest); !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
}

func TestGenerateUnknownKind(t *testing.T) {
	g := NewGenerator(&fakeIDStore{}, nil)
	if _, err := g.Generate(context.Background(), models.AggregateKind("gadget")); err == nil {
		t.Fatal("expected error for unknown kind, got nil")
	}
}
