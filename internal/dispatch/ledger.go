package dispatch

import (
	"context"

	"pushdispatch/internal/types"
)

// LedgerWriter centralizes the attempt-row construction rules: sequence
// numbering, error-message classification, and the dry-run write guards.
// Exactly one row is written per processed notification, never one per
// endpoint.
type LedgerWriter struct {
	ledger DeliveryLedger
	clock  types.Clock
}

// NewLedgerWriter creates a LedgerWriter over the given ledger.
func NewLedgerWriter(ledger DeliveryLedger, clock types.Clock) *LedgerWriter {
	return &LedgerWriter{ledger: ledger, clock: clock}
}

// nextRetryCount computes the sequence number for the next row: 1 + the
// highest value already recorded, starting at 1.
func (w *LedgerWriter) nextRetryCount(ctx context.Context, notificationID string) (int, error) {
	latest, err := w.ledger.LatestAttempt(ctx, notificationID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	return latest.RetryCount + 1, nil
}

// RecordSend writes the attempt row for a completed fan-out. In dry-run mode
// a synthesized success is never persisted; the row is written only when the
// attempt failed, and is then tagged dry_run with success forced to false.
func (w *LedgerWriter) RecordSend(
	ctx context.Context,
	n *types.Notification,
	firstToken string,
	responses []types.JSONMap,
	anySuccess bool,
	dryRun bool,
) error {
	if dryRun && anySuccess {
		return nil
	}

	retryCount, err := w.nextRetryCount(ctx, n.ID)
	if err != nil {
		return err
	}

	attempt := &types.DeliveryAttempt{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Token:          firstToken,
		Responses:      responses,
		Success:        anySuccess && !dryRun,
		SentAt:         w.clock.Now(),
		RetryCount:     retryCount,
	}
	switch {
	case dryRun:
		attempt.ErrorMessage = string(types.ErrCodeDryRun)
	case !anySuccess:
		attempt.ErrorMessage = string(types.ErrCodeGatewayError)
	}

	return w.ledger.Append(ctx, attempt)
}

// RecordSkip writes the attempt row for a resolution skip (missing token or
// disabled preferences). Skips are not persisted in dry-run mode.
func (w *LedgerWriter) RecordSkip(
	ctx context.Context,
	n *types.Notification,
	code types.ErrorCode,
	detail types.JSONMap,
	dryRun bool,
) error {
	if dryRun {
		return nil
	}

	retryCount, err := w.nextRetryCount(ctx, n.ID)
	if err != nil {
		return err
	}

	return w.ledger.Append(ctx, &types.DeliveryAttempt{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Responses:      []types.JSONMap{detail},
		Success:        false,
		ErrorMessage:   string(code),
		SentAt:         w.clock.Now(),
		RetryCount:     retryCount,
	})
}

// RecordFailure writes the attempt row for a processing failure such as an
// unloadable profile. Failures are persisted even in dry-run mode so the
// sequence reflects real work the run attempted.
func (w *LedgerWriter) RecordFailure(
	ctx context.Context,
	n *types.Notification,
	detail types.JSONMap,
) error {
	retryCount, err := w.nextRetryCount(ctx, n.ID)
	if err != nil {
		return err
	}

	return w.ledger.Append(ctx, &types.DeliveryAttempt{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Responses:      []types.JSONMap{detail},
		Success:        false,
		ErrorMessage:   string(types.ErrCodeGatewayError),
		SentAt:         w.clock.Now(),
		RetryCount:     retryCount,
	})
}
