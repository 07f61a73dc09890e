package dispatch

import (
	"time"
)

// PolicyDecision is the outcome of evaluating the retry policy for one
// notification.
type PolicyDecision string

const (
	// PolicyEligible indicates the notification may be attempted now.
	PolicyEligible PolicyDecision = "eligible"

	// PolicyExhausted indicates the attempt budget is spent; the
	// notification is skipped on this and every future run.
	PolicyExhausted PolicyDecision = "exhausted"

	// PolicyCooldown indicates the most recent attempt is too fresh; the
	// notification becomes eligible again once the cooldown elapses.
	PolicyCooldown PolicyDecision = "cooldown"
)

// RetryPolicy bounds how often and how densely a notification is retried.
// Exhaustion is checked before cooldown, so a notification that is both
// exhausted and cooling down counts as exhausted.
type RetryPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Evaluate decides whether a notification with the given attempt history may
// be tried at the instant now. A last attempt exactly Cooldown old is already
// eligible; only strictly younger attempts trigger the cooldown skip.
func (p RetryPolicy) Evaluate(attemptCount int, lastAttemptAt *time.Time, now time.Time) PolicyDecision {
	if attemptCount >= p.MaxAttempts {
		return PolicyExhausted
	}
	if lastAttemptAt != nil && now.Sub(*lastAttemptAt) < p.Cooldown {
		return PolicyCooldown
	}
	return PolicyEligible
}
