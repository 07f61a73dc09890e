package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pushdispatch/internal/types"
)

// NotificationRepository provides read access to the app_notifications table.
// The dispatcher never mutates notifications; producers insert them.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository backed by the
// given database connection (pool or transaction).
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, message, notification_type,
	COALESCE(priority, 'normal'), job_id, action_data, created_at`

// Fetch returns the visible notification with the given ID, or nil when it
// does not exist or is hidden. Hidden notifications are never dispatched.
func (r *NotificationRepository) Fetch(ctx context.Context, id string) (*types.Notification, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM app_notifications
		 WHERE id = $1 AND is_hidden = FALSE`,
		id,
	)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch notification", err)
	}
	return n, nil
}

// FetchUndelivered returns up to limit visible notifications that have no
// successful ledger entry, oldest first. Each result is annotated with its
// latest attempt count and attempt time so the retry policy can run without
// further queries.
func (r *NotificationRepository) FetchUndelivered(ctx context.Context, limit int) ([]*types.PendingNotification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT n.id, n.user_id, n.message, n.notification_type,
		        COALESCE(n.priority, 'normal'), n.job_id, n.action_data, n.created_at,
		        COALESCE(l.retry_count, 0), l.sent_at
		 FROM app_notifications n
		 LEFT JOIN LATERAL (
		     SELECT retry_count, sent_at
		     FROM notification_delivery_log
		     WHERE notification_id = n.id
		     ORDER BY sent_at DESC
		     LIMIT 1
		 ) l ON TRUE
		 WHERE n.is_hidden = FALSE
		   AND NOT EXISTS (
		       SELECT 1 FROM notification_delivery_log d
		       WHERE d.notification_id = n.id AND d.success = TRUE
		   )
		 ORDER BY n.created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query undelivered notifications", err)
	}
	defer rows.Close()

	var results []*types.PendingNotification
	for rows.Next() {
		var (
			p             types.PendingNotification
			jobID         *string
			lastAttemptAt *time.Time
		)
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Message,
			&p.Type,
			&p.Priority,
			&jobID,
			&p.ActionData,
			&p.CreatedAt,
			&p.AttemptCount,
			&lastAttemptAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan undelivered row", err)
		}
		if jobID != nil {
			p.JobID = *jobID
		}
		p.LastAttemptAt = lastAttemptAt
		results = append(results, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating undelivered rows", err)
	}

	return results, nil
}

// scanNotification scans a single app_notifications row. Nullable columns use
// pointer types.
func scanNotification(row pgx.Row) (*types.Notification, error) {
	var (
		n     types.Notification
		jobID *string
	)
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Message,
		&n.Type,
		&n.Priority,
		&jobID,
		&n.ActionData,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if jobID != nil {
		n.JobID = *jobID
	}
	return &n, nil
}
