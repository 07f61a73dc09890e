package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"pushdispatch/internal/types"
)

// DeliveryLogRepository provides access to the notification_delivery_log
// table, the append-only ledger the retry and cooldown arithmetic reads.
type DeliveryLogRepository struct {
	db DBTX
}

// NewDeliveryLogRepository creates a DeliveryLogRepository backed by the
// given database connection (pool or transaction).
func NewDeliveryLogRepository(db DBTX) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

// HasSuccess reports whether a successful delivery has ever been recorded
// for the notification. Used both during work-set selection and as the
// pre-send re-check against concurrent runs.
func (r *DeliveryLogRepository) HasSuccess(ctx context.Context, notificationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM notification_delivery_log
		     WHERE notification_id = $1 AND success = TRUE
		 )`,
		notificationID,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check successful delivery", err)
	}
	return exists, nil
}

// LatestAttempt returns the most recent ledger position for the
// notification, or nil when no attempt has been recorded yet.
func (r *DeliveryLogRepository) LatestAttempt(ctx context.Context, notificationID string) (*types.AttemptInfo, error) {
	var info types.AttemptInfo
	err := r.db.QueryRow(ctx,
		`SELECT retry_count, sent_at
		 FROM notification_delivery_log
		 WHERE notification_id = $1
		 ORDER BY sent_at DESC
		 LIMIT 1`,
		notificationID,
	).Scan(&info.RetryCount, &info.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query latest attempt", err)
	}
	return &info, nil
}

// Append inserts one delivery-attempt row. The caller is responsible for
// setting RetryCount to 1 + the latest prior value; the ledger itself is
// append-only and rows are never updated.
func (r *DeliveryLogRepository) Append(ctx context.Context, a *types.DeliveryAttempt) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notification_delivery_log
		 (notification_id, user_id, fcm_token, fcm_response, sent_at, success, error_message, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.NotificationID,
		a.UserID,
		nilIfEmpty(a.Token),
		marshalResponses(a.Responses),
		a.SentAt,
		a.Success,
		nilIfEmpty(a.ErrorMessage),
		a.RetryCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append delivery attempt", err)
	}
	return nil
}

// marshalResponses encodes the per-endpoint gateway responses as a JSONB
// array. A nil slice is stored as NULL rather than "null".
func marshalResponses(responses []types.JSONMap) any {
	if responses == nil {
		return nil
	}
	b, err := json.Marshal(responses)
	if err != nil {
		return nil
	}
	return b
}
