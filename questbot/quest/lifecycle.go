package quest

import (
	"fmt"
	"time"

	"github.com/nonagon/questbot/questbot/database/models"
)

// NudgeCooldown is the minimum gap between re-announcement pings per quest.
const NudgeCooldown = 48 * time.Hour

// Lifecycle implements the quest state machine. Every operation is a pure
// in-memory transformation: no I/O, no cache awareness, and no partial
// effects (an operation either fully applies or returns before mutating).
// Mutating callers are responsible for marking the owning cache entry dirty.
type Lifecycle struct {
	now func() time.Time
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{now: time.Now}
}

// NewLifecycleWithClock injects the clock, making cooldown and timestamp
// behavior deterministic under test.
func NewLifecycleWithClock(now func() time.Time) *Lifecycle {
	return &Lifecycle{now: now}
}

// Announce publishes a draft quest and opens signups.
func (l *Lifecycle) Announce(q *models.Quest) error {
	if q.State != models.QuestDraft {
		return transitionErr("announce", q.State)
	}
	q.State = models.QuestAnnounced
	return nil
}

// CloseSignups stops admitting new signups while keeping the quest active.
func (l *Lifecycle) CloseSignups(q *models.Quest) error {
	if q.State != models.QuestAnnounced {
		return transitionErr("close signups", q.State)
	}
	q.State = models.QuestSignupClosed
	return nil
}

// Reopen is the explicit re-announce path back from SIGNUP_CLOSED.
func (l *Lifecycle) Reopen(q *models.Quest) error {
	if q.State != models.QuestSignupClosed {
		return transitionErr("reopen", q.State)
	}
	q.State = models.QuestAnnounced
	return nil
}

// SignUp applies a player with one character. Re-applying with the same
// (user, character) pair is idempotent and returns the existing signup.
// Signups keep arrival order so roster display is deterministic.
func (l *Lifecycle) SignUp(q *models.Quest, userID, characterID string) (models.Signup, error) {
	if !q.SignupOpen() {
		return models.Signup{}, fmt.Errorf("sign up: %w (quest is %s)", ErrSignupClosed, q.State)
	}
	if existing := q.FindSignup(userID, characterID); existing != nil {
		return *existing, nil
	}
	signup := models.Signup{
		UserID:      userID,
		CharacterID: characterID,
		SignedUpAt:  l.now(),
	}
	q.Signups = append(q.Signups, signup)
	return signup, nil
}

// RemoveSignUp withdraws every signup the user has on the quest, regardless
// of character. A second call for the same user fails with ErrNotFound.
func (l *Lifecycle) RemoveSignUp(q *models.Quest, userID string) error {
	if q.State.Terminal() {
		return transitionErr("remove signup", q.State)
	}
	kept := q.Signups[:0]
	removed := 0
	for _, s := range q.Signups {
		if s.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	if removed == 0 {
		return fmt.Errorf("remove signup: user %s has no signup: %w", userID, ErrNotFound)
	}
	q.Signups = kept
	return nil
}

// SelectSignup puts the user's signup on the roster. No capacity ceiling is
// enforced here; party size is a caller policy, not a state machine rule.
func (l *Lifecycle) SelectSignup(q *models.Quest, userID string) error {
	if q.State.Terminal() {
		return transitionErr("select signup", q.State)
	}
	for i := range q.Signups {
		if q.Signups[i].UserID == userID {
			q.Signups[i].Selected = true
			return nil
		}
	}
	return fmt.Errorf("select signup: user %s has no signup: %w", userID, ErrNotFound)
}

// MarkCompleted finishes a quest whose signups are already closed and stamps
// the end time.
func (l *Lifecycle) MarkCompleted(q *models.Quest) error {
	if q.State != models.QuestSignupClosed {
		return transitionErr("complete", q.State)
	}
	q.State = models.QuestCompleted
	q.EndedAt = l.now()
	return nil
}

// Cancel abandons the quest from any state but COMPLETED. Signups stay on
// the record for audit; cancelling an already cancelled quest is a no-op.
func (l *Lifecycle) Cancel(q *models.Quest) error {
	if q.State == models.QuestCompleted {
		return transitionErr("cancel", q.State)
	}
	q.State = models.QuestCancelled
	return nil
}

// Nudge stamps LastNudgedAt and tells the caller a re-announcement ping may
// be emitted. Emission itself belongs to the edge layer. Within the cooldown
// window it fails with ErrCooldownActive wrapping the remaining wait.
func (l *Lifecycle) Nudge(q *models.Quest) (time.Time, error) {
	now := l.now()
	if !q.LastNudgedAt.IsZero() {
		if elapsed := now.Sub(q.LastNudgedAt); elapsed < NudgeCooldown {
			return time.Time{}, fmt.Errorf("nudge: %w, %s remaining", ErrCooldownActive, (NudgeCooldown - elapsed).Round(time.Minute))
		}
	}
	q.LastNudgedAt = now
	return now, nil
}

func transitionErr(op string, state models.QuestState) error {
	return fmt.Errorf("%s: %w (quest is %s)", op, ErrInvalidTransition, state)
}
