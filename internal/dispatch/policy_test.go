package dispatch

import (
	"testing"
	"time"
)

func TestRetryPolicy_Evaluate(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Cooldown: 2 * time.Minute}
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		attempts int
		lastAt   *time.Time
		expected PolicyDecision
	}{
		{"no attempts yet", 0, nil, PolicyEligible},
		{"under budget, no recent attempt", 4, at(time.Hour), PolicyEligible},
		{"at budget", 5, at(time.Hour), PolicyExhausted},
		{"over budget", 7, at(time.Hour), PolicyExhausted},
		{"exhausted wins over cooldown", 5, at(time.Second), PolicyExhausted},
		{"attempt just now", 1, at(0), PolicyCooldown},
		{"attempt one second ago", 1, at(time.Second), PolicyCooldown},
		{"one second before boundary", 1, at(2*time.Minute - time.Second), PolicyCooldown},
		{"exactly at boundary", 1, at(2 * time.Minute), PolicyEligible},
		{"past boundary", 1, at(2*time.Minute + time.Second), PolicyEligible},
		{"nil last attempt with prior count", 3, nil, PolicyEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Evaluate(tt.attempts, tt.lastAt, now)
			if got != tt.expected {
				t.Errorf("Evaluate(%d, %v) = %q, want %q", tt.attempts, tt.lastAt, got, tt.expected)
			}
		})
	}
}
