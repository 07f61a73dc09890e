package dispatch

import (
	"context"
	"errors"

	"pushdispatch/internal/types"
)

// ResolutionStatus classifies the outcome of recipient resolution.
type ResolutionStatus string

const (
	// ResolutionDeliver means at least one enabled endpoint was found.
	ResolutionDeliver ResolutionStatus = "deliver"

	// ResolutionMissingToken means the profile has no registration tokens.
	ResolutionMissingToken ResolutionStatus = "missing_token"

	// ResolutionSkippedPrefs means the user explicitly disabled this
	// notification type.
	ResolutionSkippedPrefs ResolutionStatus = "skipped_preferences"

	// ResolutionProfileError means the profile could not be loaded; the
	// attempt is recorded as a failed delivery.
	ResolutionProfileError ResolutionStatus = "profile_error"
)

// Resolution is the result of resolving a notification's recipient into
// concrete delivery endpoints.
type Resolution struct {
	Status    ResolutionStatus
	Profile   *types.RecipientProfile
	Endpoints []types.Endpoint
	// Err is set when Status is ResolutionProfileError.
	Err error
}

// Resolver turns a notification's user ID into the set of endpoints to fan
// out to, applying the preference gate. Checks run in a fixed order: profile
// availability, then token presence, then preferences. A user with no tokens
// is reported as missing_token even if the type is also disabled.
type Resolver struct {
	profiles ProfileStore
}

// NewResolver creates a Resolver over the given profile store.
func NewResolver(profiles ProfileStore) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve determines how the notification should be routed.
func (r *Resolver) Resolve(ctx context.Context, n *types.Notification) *Resolution {
	profile, err := r.profiles.Fetch(ctx, n.UserID)
	if err != nil {
		return &Resolution{Status: ResolutionProfileError, Err: err}
	}
	if profile == nil {
		return &Resolution{Status: ResolutionProfileError, Err: errors.New("profile not found")}
	}

	endpoints := profile.Endpoints()
	if len(endpoints) == 0 {
		return &Resolution{Status: ResolutionMissingToken, Profile: profile}
	}

	if !profile.Prefs.Enabled(n.Type) {
		return &Resolution{Status: ResolutionSkippedPrefs, Profile: profile}
	}

	return &Resolution{Status: ResolutionDeliver, Profile: profile, Endpoints: endpoints}
}
