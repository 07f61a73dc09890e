package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pushdispatch/internal/types"
)

func noSleep(time.Duration) {}

func newTestBaseClient(httpClient *http.Client, policy RetryPolicy) (*BaseClient, *[]time.Duration) {
	var sleeps []time.Duration
	client := NewBaseClient(httpClient, "test-breaker", policy, "PushDispatch/1.0",
		WithSleepFunc(func(d time.Duration) { sleeps = append(sleeps, d) }))
	return client, &sleeps
}

func TestBaseClient_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, sleeps := newTestBaseClient(server.Client(), RetryPolicy{
		MaxRetries: 3,
		MinWait:    time.Millisecond,
		MaxWait:    10 * time.Millisecond,
	})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do returned unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(*sleeps) != 2 {
		t.Errorf("expected 2 backoff sleeps, got %d", len(*sleeps))
	}
}

func TestBaseClient_NonRetryableStatusReturnedAsIs(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := newTestBaseClient(server.Client(), DefaultRetryPolicy())

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("4xx responses must be returned, not mapped: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", got)
	}
}

func TestBaseClient_ExhaustedRetriesMapToUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := newTestBaseClient(server.Client(), RetryPolicy{
		MaxRetries: 1,
		MinWait:    time.Millisecond,
		MaxWait:    time.Millisecond,
	})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected an error after exhausted retries")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected upstream_unavailable AppError, got %v", err)
	}
}

func TestBaseClient_RateLimitMapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, sleeps := newTestBaseClient(server.Client(), RetryPolicy{
		MaxRetries: 1,
		MinWait:    time.Millisecond,
		MaxWait:    5 * time.Second,
	})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected an error after exhausted retries")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected upstream_rate_limited AppError, got %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Errorf("Retry-After header must drive the backoff, got %v", *sleeps)
	}
}

func TestBaseClient_ReplaysRequestBodyOnRetry(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, _ := newTestBaseClient(server.Client(), RetryPolicy{
		MaxRetries: 2,
		MinWait:    time.Millisecond,
		MaxWait:    time.Millisecond,
	})

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"payload":true}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do returned unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"payload":true}` {
			t.Errorf("attempt %d body = %q, want the original payload", i, b)
		}
	}
}

func TestBaseClient_InjectsRunIDAndUserAgent(t *testing.T) {
	var gotRunID, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRunID = r.Header.Get("X-Dispatch-Run-Id")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewBaseClient(server.Client(), "test-breaker", DefaultRetryPolicy(), "PushDispatch/1.0", WithSleepFunc(noSleep))

	ctx := types.WithRunID(context.Background(), "run-xyz")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do returned unexpected error: %v", err)
	}
	resp.Body.Close()

	if gotRunID != "run-xyz" {
		t.Errorf("run ID header = %q", gotRunID)
	}
	if gotUA != "PushDispatch/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
}
