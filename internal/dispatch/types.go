// Package dispatch implements the delivery run: selecting undelivered
// notifications, applying retry and cooldown policy, resolving recipient
// endpoints, fanning out to the push gateway, and recording every outcome in
// the append-only delivery ledger. A run is triggered externally (HTTP or
// queue) and serialized against concurrent runs by an advisory lock.
package dispatch

import (
	"context"

	"pushdispatch/internal/types"
)

// NotificationStore provides read access to queued notifications.
type NotificationStore interface {
	// Fetch returns the visible notification with the given ID, or nil when
	// it does not exist or is hidden.
	Fetch(ctx context.Context, id string) (*types.Notification, error)

	// FetchUndelivered returns up to limit visible notifications without a
	// successful ledger entry, oldest first, annotated with attempt context.
	FetchUndelivered(ctx context.Context, limit int) ([]*types.PendingNotification, error)
}

// ProfileStore provides read access to recipient profiles.
type ProfileStore interface {
	// Fetch returns the profile for the user, or nil when none exists.
	Fetch(ctx context.Context, userID string) (*types.RecipientProfile, error)
}

// DeliveryLedger is the append-only record of delivery attempts.
type DeliveryLedger interface {
	// HasSuccess reports whether a successful delivery was ever recorded.
	HasSuccess(ctx context.Context, notificationID string) (bool, error)

	// LatestAttempt returns the most recent ledger position, or nil when no
	// attempt exists yet.
	LatestAttempt(ctx context.Context, notificationID string) (*types.AttemptInfo, error)

	// Append records one attempt row.
	Append(ctx context.Context, attempt *types.DeliveryAttempt) error
}

// RunLocker serializes dispatcher runs. TryAcquire never blocks; when the
// lock is held elsewhere it reports acquired=false without error.
type RunLocker interface {
	TryAcquire(ctx context.Context, key int64) (release func(context.Context), acquired bool, err error)
}

// TokenSource supplies gateway access tokens. Implementations cache tokens
// across runs.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Gateway delivers a single message to a single device token and classifies
// the response. Rejections come back as failed results, not errors.
type Gateway interface {
	Send(ctx context.Context, accessToken, deviceToken string, msg *types.PushMessage) (*types.GatewayResult, error)
}

// RunMetrics records the outcome of a completed run for observability.
type RunMetrics interface {
	RecordRun(ctx context.Context, summary *types.RunSummary)
}

// RunInput is the parsed trigger payload for one dispatcher invocation.
// A non-empty NotificationID selects single mode; otherwise the run is a
// batch scan bounded by Limit (0 means the configured default).
type RunInput struct {
	NotificationID string `json:"notification_id"`
	Limit          int    `json:"limit"`
	DryRun         bool   `json:"dry_run"`
}
