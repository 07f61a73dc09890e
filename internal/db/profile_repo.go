package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pushdispatch/internal/types"
)

// ProfileRepository provides read access to the delivery-relevant slice of
// the profiles table: registration tokens and notification preferences.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Fetch returns the recipient profile for the given user, or nil when no
// profile row exists.
func (r *ProfileRepository) Fetch(ctx context.Context, userID string) (*types.RecipientProfile, error) {
	var (
		p           types.RecipientProfile
		mobileToken *string
		webToken    *string
		displayName *string
	)

	err := r.db.QueryRow(ctx,
		`SELECT fcm_token, fcm_token_web, display_name, notification_prefs
		 FROM profiles
		 WHERE id = $1`,
		userID,
	).Scan(&mobileToken, &webToken, &displayName, &p.Prefs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch profile", err)
	}

	p.UserID = userID
	if mobileToken != nil {
		p.MobileToken = *mobileToken
	}
	if webToken != nil {
		p.WebToken = *webToken
	}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	return &p, nil
}
