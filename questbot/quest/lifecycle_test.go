package quest

import (
	"errors"
	"testing"
	"time"

	"github.com/nonagon/questbot/questbot/database/models"
)

func testClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func draftQuest() *models.Quest {
	return &models.Quest{
		ID:        "QUESH3X1T7",
		RefereeID: "USERA2B4C6",
		Title:     "The Sunken Vault",
		State:     models.QuestDraft,
	}
}

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    models.QuestState
		op      func(*Lifecycle, *models.Quest) error
		want    models.QuestState
		wantErr bool
	}{
		{
			name: "announce draft",
			from: models.QuestDraft,
			op:   (*Lifecycle).Announce,
			want: models.QuestAnnounced,
		},
		{
			name:    "announce announced",
			from:    models.QuestAnnounced,
			op:      (*Lifecycle).Announce,
			wantErr: true,
		},
		{
			name:    "announce completed",
			from:    models.QuestCompleted,
			op:      (*Lifecycle).Announce,
			wantErr: true,
		},
		{
			name: "close announced",
			from: models.QuestAnnounced,
			op:   (*Lifecycle).CloseSignups,
			want: models.QuestSignupClosed,
		},
		{
			name:    "close draft",
			from:    models.QuestDraft,
			op:      (*Lifecycle).CloseSignups,
			wantErr: true,
		},
		{
			name: "reopen closed",
			from: models.QuestSignupClosed,
			op:   (*Lifecycle).Reopen,
			want: models.QuestAnnounced,
		},
		{
			name:    "reopen announced",
			from:    models.QuestAnnounced,
			op:      (*Lifecycle).Reopen,
			wantErr: true,
		},
		{
			name: "complete closed",
			from: models.QuestSignupClosed,
			op:   (*Lifecycle).MarkCompleted,
			want: models.QuestCompleted,
		},
		{
			name:    "complete announced",
			from:    models.QuestAnnounced,
			op:      (*Lifecycle).MarkCompleted,
			wantErr: true,
		},
		{
			name:    "complete cancelled",
			from:    models.QuestCancelled,
			op:      (*Lifecycle).MarkCompleted,
			wantErr: true,
		},
		{
			name:    "complete completed",
			from:    models.QuestCompleted,
			op:      (*Lifecycle).MarkCompleted,
			wantErr: true,
		},
		{
			name: "cancel draft",
			from: models.QuestDraft,
			op:   (*Lifecycle).Cancel,
			want: models.QuestCancelled,
		},
		{
			name: "cancel closed",
			from: models.QuestSignupClosed,
			op:   (*Lifecycle).Cancel,
			want: models.QuestCancelled,
		},
		{
			name: "cancel cancelled is a no-op",
			from: models.QuestCancelled,
			op:   (*Lifecycle).Cancel,
			want: models.QuestCancelled,
		},
		{
			name:    "cancel completed",
			from:    models.QuestCompleted,
			op:      (*Lifecycle).Cancel,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle()
			q := draftQuest()
			q.State = tt.from

			err := tt.op(l, q)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("error = %v, want ErrInvalidTransition", err)
				}
				if q.State != tt.from {
					t.Errorf("state changed to %s on failed transition", q.State)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.State != tt.want {
				t.Errorf("state = %s, want %s", q.State, tt.want)
			}
		})
	}
}

func TestSignUpIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	now, clock := testClock(start)
	l := NewLifecycleWithClock(clock)

	q := draftQuest()
	q.State = models.QuestAnnounced

	first, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if !first.SignedUpAt.Equal(start) {
		t.Errorf("SignedUpAt = %v, want %v", first.SignedUpAt, start)
	}

	// Same pair again, later: unchanged record, no duplicate.
	*now = start.Add(2 * time.Hour)
	second, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7")
	if err != nil {
		t.Fatalf("SignUp() repeat error = %v", err)
	}
	if !second.SignedUpAt.Equal(start) {
		t.Errorf("repeat SignedUpAt = %v, want original %v", second.SignedUpAt, start)
	}
	if len(q.Signups) != 1 {
		t.Fatalf("signups = %d, want 1", len(q.Signups))
	}

	// Same user, different character: a distinct signup.
	if _, err := l.SignUp(q, "USERA2B4C6", "CHARC4D6E8"); err != nil {
		t.Fatalf("SignUp() second character error = %v", err)
	}
	if len(q.Signups) != 2 {
		t.Fatalf("signups = %d, want 2", len(q.Signups))
	}
}

func TestSignUpClosedStates(t *testing.T) {
	l := NewLifecycle()
	for _, state := range []models.QuestState{
		models.QuestDraft,
		models.QuestSignupClosed,
		models.QuestCompleted,
		models.QuestCancelled,
	} {
		q := draftQuest()
		q.State = state
		if _, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7"); !errors.Is(err, ErrSignupClosed) {
			t.Errorf("SignUp() in %s: error = %v, want ErrSignupClosed", state, err)
		}
	}
}

func TestRemoveSignUp(t *testing.T) {
	l := NewLifecycle()
	q := draftQuest()
	q.State = models.QuestAnnounced

	if _, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SignUp(q, "USERA2B4C6", "CHARC4D6E8"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SignUp(q, "USERD5E7F9", "CHARF6G8H2"); err != nil {
		t.Fatal(err)
	}

	// Withdrawal removes every signup the user has.
	if err := l.RemoveSignUp(q, "USERA2B4C6"); err != nil {
		t.Fatalf("RemoveSignUp() error = %v", err)
	}
	if len(q.Signups) != 1 || q.Signups[0].UserID != "USERD5E7F9" {
		t.Fatalf("signups after removal = %+v", q.Signups)
	}

	// Second withdrawal has nothing to remove.
	if err := l.RemoveSignUp(q, "USERA2B4C6"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("repeat RemoveSignUp() error = %v, want ErrNotFound", err)
	}

	// Re-applying after withdrawal yields a fresh signup.
	fresh, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7")
	if err != nil {
		t.Fatalf("SignUp() after withdraw error = %v", err)
	}
	if fresh.Selected {
		t.Error("fresh signup carries stale selection")
	}
}

func TestRemoveSignUpTerminal(t *testing.T) {
	l := NewLifecycle()
	q := draftQuest()
	q.State = models.QuestCompleted
	q.Signups = []models.Signup{{UserID: "USERA2B4C6", CharacterID: "CHARB3C5D7"}}

	if err := l.RemoveSignUp(q, "USERA2B4C6"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("RemoveSignUp() on completed quest: error = %v, want ErrInvalidTransition", err)
	}
	if len(q.Signups) != 1 {
		t.Error("signups mutated on terminal quest")
	}
}

func TestSelectSignup(t *testing.T) {
	l := NewLifecycle()
	q := draftQuest()
	q.State = models.QuestAnnounced

	if _, err := l.SignUp(q, "USERA2B4C6", "CHARB3C5D7"); err != nil {
		t.Fatal(err)
	}

	if err := l.SelectSignup(q, "USERA2B4C6"); err != nil {
		t.Fatalf("SelectSignup() error = %v", err)
	}
	if roster := q.Roster(); len(roster) != 1 || roster[0].UserID != "USERA2B4C6" {
		t.Fatalf("Roster() = %+v", q.Roster())
	}

	if err := l.SelectSignup(q, "USERD5E7F9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SelectSignup() without signup: error = %v, want ErrNotFound", err)
	}

	// Selection also works after signups close.
	if err := l.CloseSignups(q); err != nil {
		t.Fatal(err)
	}
	if err := l.SelectSignup(q, "USERA2B4C6"); err != nil {
		t.Fatalf("SelectSignup() after close error = %v", err)
	}
}

func TestNudgeCooldown(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	now, clock := testClock(start)
	l := NewLifecycleWithClock(clock)

	q := draftQuest()
	q.State = models.QuestAnnounced

	nudgedAt, err := l.Nudge(q)
	if err != nil {
		t.Fatalf("first Nudge() error = %v", err)
	}
	if !nudgedAt.Equal(start) {
		t.Errorf("nudgedAt = %v, want %v", nudgedAt, start)
	}

	// Inside the window.
	*now = start.Add(NudgeCooldown - time.Minute)
	if _, err := l.Nudge(q); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("Nudge() inside cooldown: error = %v, want ErrCooldownActive", err)
	}
	if !q.LastNudgedAt.Equal(start) {
		t.Error("LastNudgedAt advanced on failed nudge")
	}

	// Exactly at the boundary the cooldown has elapsed.
	*now = start.Add(NudgeCooldown)
	if _, err := l.Nudge(q); err != nil {
		t.Fatalf("Nudge() at boundary: error = %v", err)
	}
	if !q.LastNudgedAt.Equal(start.Add(NudgeCooldown)) {
		t.Errorf("LastNudgedAt = %v, want %v", q.LastNudgedAt, start.Add(NudgeCooldown))
	}
}

func TestMarkCompletedStampsEnd(t *testing.T) {
	start := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	_, clock := testClock(start)
	l := NewLifecycleWithClock(clock)

	q := draftQuest()
	q.State = models.QuestSignupClosed

	if err := l.MarkCompleted(q); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if !q.EndedAt.Equal(start) {
		t.Errorf("EndedAt = %v, want %v", q.EndedAt, start)
	}
}

// TestFullQuestFlow walks one quest from draft to completion the way a
// session actually runs.
func TestFullQuestFlow(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	now, clock := testClock(start)
	l := NewLifecycleWithClock(clock)

	q := draftQuest()

	if err := l.Announce(q); err != nil {
		t.Fatal(err)
	}

	for _, pair := range [][2]string{
		{"USERA2B4C6", "CHARB3C5D7"},
		{"USERD5E7F9", "CHARF6G8H2"},
		{"USERG7H2J4", "CHARJ8K2L4"},
	} {
		if _, err := l.SignUp(q, pair[0], pair[1]); err != nil {
			t.Fatal(err)
		}
	}

	// One player drops, nudge brings in a replacement after the cooldown.
	if err := l.RemoveSignUp(q, "USERG7H2J4"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Nudge(q); err != nil {
		t.Fatal(err)
	}
	*now = start.Add(NudgeCooldown + time.Hour)
	if _, err := l.Nudge(q); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SignUp(q, "USERK3L5M7", "CHARM4N6P8"); err != nil {
		t.Fatal(err)
	}

	if err := l.SelectSignup(q, "USERA2B4C6"); err != nil {
		t.Fatal(err)
	}
	if err := l.SelectSignup(q, "USERK3L5M7"); err != nil {
		t.Fatal(err)
	}

	if err := l.CloseSignups(q); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkCompleted(q); err != nil {
		t.Fatal(err)
	}

	if q.State != models.QuestCompleted {
		t.Fatalf("state = %s, want COMPLETED", q.State)
	}
	if err := l.MarkCompleted(q); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second MarkCompleted() error = %v, want ErrInvalidTransition", err)
	}
	if len(q.Roster()) != 2 {
		t.Fatalf("roster size = %d, want 2", len(q.Roster()))
	}
	if !q.SummaryNeeded() {
		t.Error("completed quest without write-up should need a summary")
	}
}
