// Package types defines the shared domain model for the push dispatch
// platform: notifications, recipient profiles, delivery ledger entries, and
// the run summary produced by the dispatcher.
package types

import "time"

// NotificationType is the closed vocabulary of notification categories.
// The dispatcher maps each type to a push title and a client action; unknown
// values fall back to generic text at runtime.
type NotificationType string

const (
	TypeJobAssignment       NotificationType = "job_assignment"
	TypeJobReassignment     NotificationType = "job_reassignment"
	TypeJobConfirmation     NotificationType = "job_confirmation"
	TypeJobCancellation     NotificationType = "job_cancellation"
	TypeJobCancelled        NotificationType = "job_cancelled"
	TypeJobStatusChange     NotificationType = "job_status_change"
	TypePaymentReminder     NotificationType = "payment_reminder"
	TypeSystemAlert         NotificationType = "system_alert"
	TypeJobStart            NotificationType = "job_start"
	TypeStepCompletion      NotificationType = "step_completion"
	TypeJobCompletion       NotificationType = "job_completion"
	TypeDeadlineWarning90   NotificationType = "job_start_deadline_warning_90min"
	TypeDeadlineWarning60   NotificationType = "job_start_deadline_warning_60min"
)

// Priority is the delivery priority requested by the notification producer.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// JSONMap is an opaque structured payload stored as JSONB.
type JSONMap map[string]any

// Notification is a queued unit of information addressed to a single user.
// The dispatcher treats notifications as read-only; producers insert them.
type Notification struct {
	ID         string
	UserID     string
	Message    string
	Type       NotificationType
	Priority   Priority
	JobID      string
	ActionData JSONMap
	CreatedAt  time.Time
	Hidden     bool
}

// PendingNotification pairs a Notification with its current ledger context:
// how many attempts have been made and when the most recent one happened.
// LastAttemptAt is nil when no attempt has been recorded yet.
type PendingNotification struct {
	Notification
	AttemptCount  int
	LastAttemptAt *time.Time
}

// Platform identifies the class of device a registration token targets.
// A user may legitimately hold one token per platform at the same time.
type Platform string

const (
	PlatformMobile Platform = "mobile"
	PlatformWeb    Platform = "web"
)

// Endpoint is a platform-specific push registration the gateway can target.
type Endpoint struct {
	Platform Platform
	Token    string
}

// NotificationPrefs maps a notification type tag to an opt-in flag.
// Absence of a key or an explicit true means the type is enabled; only an
// explicit false disables it.
type NotificationPrefs map[string]bool

// Enabled reports whether the user accepts notifications of the given type.
func (p NotificationPrefs) Enabled(t NotificationType) bool {
	if p == nil {
		return true
	}
	enabled, ok := p[string(t)]
	return !ok || enabled
}

// RecipientProfile holds the delivery-relevant slice of a user profile:
// registration tokens per platform and the per-type preference map.
type RecipientProfile struct {
	UserID      string
	DisplayName string
	MobileToken string
	WebToken    string
	Prefs       NotificationPrefs
}

// Endpoints returns the ordered fan-out targets for the profile: mobile
// first, then web, skipping empty registrations.
func (p *RecipientProfile) Endpoints() []Endpoint {
	var out []Endpoint
	if p.MobileToken != "" {
		out = append(out, Endpoint{Platform: PlatformMobile, Token: p.MobileToken})
	}
	if p.WebToken != "" {
		out = append(out, Endpoint{Platform: PlatformWeb, Token: p.WebToken})
	}
	return out
}

// DeliveryAttempt is one immutable ledger row describing a single processing
// outcome for a notification. Fan-out across several endpoints still produces
// exactly one row; Responses carries one element per endpoint targeted.
type DeliveryAttempt struct {
	NotificationID string
	UserID         string
	// Token is the representative endpoint for the attempt: the first one
	// targeted, or empty when no endpoint was available.
	Token     string
	Responses []JSONMap
	Success   bool
	// ErrorMessage carries the failure classification (an ErrorCode string)
	// and is empty on success.
	ErrorMessage string
	SentAt       time.Time
	// RetryCount is the attempt sequence number: 1 + the highest prior value
	// recorded for the notification. It is never reset.
	RetryCount int
}

// TruncateToken shortens a device registration token to its first 20
// characters for logs and stored responses. The dispatch pipeline and the
// gateway client both store tokens through this helper so the stored prefix
// length never drifts between them.
func TruncateToken(token string) string {
	const maxLen = 20
	if len(token) > maxLen {
		return token[:maxLen] + "..."
	}
	return token
}

// AttemptInfo is the latest ledger position for a notification.
type AttemptInfo struct {
	RetryCount int
	SentAt     time.Time
}

// RunMode distinguishes targeted single-notification runs from batch runs.
type RunMode string

const (
	RunModeSingle RunMode = "single"
	RunModeBatch  RunMode = "batch"
)

// RunSummary is the structured result of one dispatcher invocation. It is
// returned to the external scheduler regardless of per-notification failures.
type RunSummary struct {
	Success            bool    `json:"success"`
	RunID              string  `json:"run_id"`
	Mode               RunMode `json:"mode"`
	DryRun             bool    `json:"dry_run"`
	Message            string  `json:"message,omitempty"`
	SelectedCount      int     `json:"selected_count"`
	Processed          int     `json:"processed"`
	SentSuccess        int     `json:"sent_success"`
	SentFailed         int     `json:"sent_failed"`
	SkippedMaxRetries  int     `json:"skipped_max_retries"`
	SkippedCooldown    int     `json:"skipped_cooldown"`
	SkippedPreferences int     `json:"skipped_preferences"`
	MissingToken       int     `json:"missing_token"`
}
