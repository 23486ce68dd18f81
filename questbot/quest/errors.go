package quest

import "errors"

// Expected business-rule rejections and hard failures share one taxonomy so
// the command layer can map each to a stable user-facing message. Match with
// errors.Is; wrapped variants carry call-site context.
var (
	ErrInvalidTransition = errors.New("invalid quest state transition")
	ErrSignupClosed      = errors.New("signups are closed")
	ErrNotFound          = errors.New("not found")
	ErrCooldownActive    = errors.New("nudge cooldown active")
	ErrIDSpaceExhausted  = errors.New("identifier space exhausted")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
