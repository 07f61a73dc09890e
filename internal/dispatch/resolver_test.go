package dispatch

import (
	"context"
	"errors"
	"testing"

	"pushdispatch/internal/types"
)

func TestResolve_ProfileFetchError(t *testing.T) {
	store := &mockProfileStore{err: errors.New("db down")}
	r := NewResolver(store)

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionProfileError {
		t.Fatalf("expected profile_error, got %q", res.Status)
	}
	if res.Err == nil {
		t.Error("expected Err to be set")
	}
}

func TestResolve_ProfileNotFound(t *testing.T) {
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionProfileError {
		t.Fatalf("expected profile_error for absent profile, got %q", res.Status)
	}
}

func TestResolve_NoTokens(t *testing.T) {
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{
		"u-1": testProfile("u-1", "", ""),
	}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionMissingToken {
		t.Fatalf("expected missing_token, got %q", res.Status)
	}
}

func TestResolve_MissingTokenTakesPrecedenceOverPreferences(t *testing.T) {
	profile := testProfile("u-1", "", "")
	profile.Prefs = types.NotificationPrefs{string(types.TypeJobStatusChange): false}
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{"u-1": profile}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionMissingToken {
		t.Fatalf("token check runs before preferences, got %q", res.Status)
	}
}

func TestResolve_PreferencesDisabled(t *testing.T) {
	profile := testProfile("u-1", "tok", "")
	profile.Prefs = types.NotificationPrefs{string(types.TypeJobStatusChange): false}
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{"u-1": profile}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionSkippedPrefs {
		t.Fatalf("expected skipped_preferences, got %q", res.Status)
	}
}

func TestResolve_EndpointOrderingMobileFirst(t *testing.T) {
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{
		"u-1": testProfile("u-1", "tok-mobile", "tok-web"),
	}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionDeliver {
		t.Fatalf("expected deliver, got %q", res.Status)
	}
	if len(res.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(res.Endpoints))
	}
	if res.Endpoints[0].Platform != types.PlatformMobile || res.Endpoints[0].Token != "tok-mobile" {
		t.Errorf("expected mobile endpoint first, got %+v", res.Endpoints[0])
	}
	if res.Endpoints[1].Platform != types.PlatformWeb || res.Endpoints[1].Token != "tok-web" {
		t.Errorf("expected web endpoint second, got %+v", res.Endpoints[1])
	}
}

func TestResolve_WebOnlyProfileDelivers(t *testing.T) {
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{
		"u-1": testProfile("u-1", "", "tok-web"),
	}})

	n := testNotification("n-1", "u-1")
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionDeliver {
		t.Fatalf("expected deliver, got %q", res.Status)
	}
	if len(res.Endpoints) != 1 || res.Endpoints[0].Platform != types.PlatformWeb {
		t.Errorf("expected single web endpoint, got %+v", res.Endpoints)
	}
}

func TestResolve_UnlistedTypeIsEnabled(t *testing.T) {
	profile := testProfile("u-1", "tok", "")
	profile.Prefs = types.NotificationPrefs{"payment_reminder": false}
	r := NewResolver(&mockProfileStore{profiles: map[string]*types.RecipientProfile{"u-1": profile}})

	n := testNotification("n-1", "u-1") // job_status_change, not in prefs
	res := r.Resolve(context.Background(), &n)

	if res.Status != ResolutionDeliver {
		t.Fatalf("absent preference key must mean enabled, got %q", res.Status)
	}
}
