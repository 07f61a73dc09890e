package dispatch

import (
	"context"
	"time"

	"pushdispatch/internal/config"
	"pushdispatch/internal/types"
)

// --- Shared test doubles ---

// mockClock returns a fixed instant.
type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

// mockLogger discards all output.
type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

// mockNotificationStore serves canned notifications.
type mockNotificationStore struct {
	single      *types.Notification
	fetchErr    error
	pending     []*types.PendingNotification
	pendingErr  error
	fetchCalls  []string
	lastLimit   int
}

func (m *mockNotificationStore) Fetch(_ context.Context, id string) (*types.Notification, error) {
	m.fetchCalls = append(m.fetchCalls, id)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.single, nil
}

func (m *mockNotificationStore) FetchUndelivered(_ context.Context, limit int) ([]*types.PendingNotification, error) {
	m.lastLimit = limit
	if m.pendingErr != nil {
		return nil, m.pendingErr
	}
	return m.pending, nil
}

// mockProfileStore serves canned profiles per user ID.
type mockProfileStore struct {
	profiles map[string]*types.RecipientProfile
	err      error
}

func (m *mockProfileStore) Fetch(_ context.Context, userID string) (*types.RecipientProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profiles[userID], nil
}

// mockLedger is an in-memory DeliveryLedger. Append keeps the latest-attempt
// view current so sequence numbering behaves like the real table.
type mockLedger struct {
	delivered     map[string]bool
	latest        map[string]*types.AttemptInfo
	appended      []*types.DeliveryAttempt
	hasSuccessErr error
	latestErr     error
	appendErr     error

	// hasSuccessAfter marks notifications as delivered from the Nth
	// HasSuccess call onward, to simulate a concurrent run landing a
	// success between selection and processing.
	hasSuccessAfter map[string]int
	hasSuccessCalls map[string]int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		delivered:       make(map[string]bool),
		latest:          make(map[string]*types.AttemptInfo),
		hasSuccessAfter: make(map[string]int),
		hasSuccessCalls: make(map[string]int),
	}
}

func (m *mockLedger) HasSuccess(_ context.Context, notificationID string) (bool, error) {
	if m.hasSuccessErr != nil {
		return false, m.hasSuccessErr
	}
	m.hasSuccessCalls[notificationID]++
	if after, ok := m.hasSuccessAfter[notificationID]; ok && m.hasSuccessCalls[notificationID] >= after {
		return true, nil
	}
	return m.delivered[notificationID], nil
}

func (m *mockLedger) LatestAttempt(_ context.Context, notificationID string) (*types.AttemptInfo, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	return m.latest[notificationID], nil
}

func (m *mockLedger) Append(_ context.Context, a *types.DeliveryAttempt) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, a)
	m.latest[a.NotificationID] = &types.AttemptInfo{
		RetryCount: a.RetryCount,
		SentAt:     a.SentAt,
	}
	if a.Success {
		m.delivered[a.NotificationID] = true
	}
	return nil
}

// appendedFor filters recorded rows by notification ID.
func (m *mockLedger) appendedFor(notificationID string) []*types.DeliveryAttempt {
	var out []*types.DeliveryAttempt
	for _, a := range m.appended {
		if a.NotificationID == notificationID {
			out = append(out, a)
		}
	}
	return out
}

// mockLocker simulates the advisory run lock. It records the state of the
// context each release call arrives with, so tests can assert the unlock is
// never issued on an expired context.
type mockLocker struct {
	acquired       bool
	err            error
	releaseCalls   int
	releaseCtxErrs []error
}

func (m *mockLocker) TryAcquire(_ context.Context, _ int64) (func(context.Context), bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	if !m.acquired {
		return nil, false, nil
	}
	return func(ctx context.Context) {
		m.releaseCalls++
		m.releaseCtxErrs = append(m.releaseCtxErrs, ctx.Err())
	}, true, nil
}

// mockTokenSource returns a fixed token.
type mockTokenSource struct {
	token string
	err   error
	calls int
}

func (m *mockTokenSource) Token(_ context.Context) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

// mockGateway records sends and serves scripted results keyed by device token.
// With blockUntilCtxDone set it parks until the send context dies, simulating
// an upstream slow enough to exhaust the run deadline.
type mockGateway struct {
	results           map[string]*types.GatewayResult
	err               error
	sends             []mockSend
	blockUntilCtxDone bool
}

type mockSend struct {
	accessToken string
	deviceToken string
	msg         *types.PushMessage
}

func (m *mockGateway) Send(ctx context.Context, accessToken, deviceToken string, msg *types.PushMessage) (*types.GatewayResult, error) {
	m.sends = append(m.sends, mockSend{accessToken: accessToken, deviceToken: deviceToken, msg: msg})
	if m.blockUntilCtxDone {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	if r, ok := m.results[deviceToken]; ok {
		return r, nil
	}
	return &types.GatewayResult{
		Success:   true,
		MessageID: "msg-1",
		Raw:       types.JSONMap{"name": "projects/p/messages/msg-1"},
	}, nil
}

// mockRunMetrics captures recorded summaries.
type mockRunMetrics struct {
	recorded []*types.RunSummary
}

func (m *mockRunMetrics) RecordRun(_ context.Context, summary *types.RunSummary) {
	m.recorded = append(m.recorded, summary)
}

// --- Fixtures ---

var testBaseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testDispatcherConfig() config.DispatcherConfig {
	return config.DispatcherConfig{
		BatchLimit:  50,
		MaxAttempts: 5,
		Cooldown:    2 * time.Minute,
		LockKey:     1234567890,
	}
}

func testNotification(id, userID string) types.Notification {
	return types.Notification{
		ID:        id,
		UserID:    userID,
		Message:   "Your job has been updated",
		Type:      types.TypeJobStatusChange,
		Priority:  types.PriorityNormal,
		CreatedAt: testBaseTime.Add(-time.Hour),
	}
}

func testProfile(userID string, mobile, web string) *types.RecipientProfile {
	return &types.RecipientProfile{
		UserID:      userID,
		DisplayName: "Test Driver",
		MobileToken: mobile,
		WebToken:    web,
	}
}

type coordinatorFixture struct {
	notifications *mockNotificationStore
	profiles      *mockProfileStore
	ledger        *mockLedger
	locker        *mockLocker
	creds         *mockTokenSource
	gateway       *mockGateway
	metrics       *mockRunMetrics
	clock         *mockClock
	coordinator   *Coordinator
}

func newCoordinatorFixture() *coordinatorFixture {
	f := &coordinatorFixture{
		notifications: &mockNotificationStore{},
		profiles:      &mockProfileStore{profiles: map[string]*types.RecipientProfile{}},
		ledger:        newMockLedger(),
		locker:        &mockLocker{acquired: true},
		creds:         &mockTokenSource{token: "access-token"},
		gateway:       &mockGateway{results: map[string]*types.GatewayResult{}},
		metrics:       &mockRunMetrics{},
		clock:         &mockClock{now: testBaseTime},
	}

	logger := &mockLogger{}
	f.coordinator = NewCoordinator(
		f.notifications,
		f.ledger,
		NewResolver(f.profiles),
		NewExecutor(f.gateway, logger),
		NewLedgerWriter(f.ledger, f.clock),
		f.locker,
		f.creds,
		f.metrics,
		f.clock,
		logger,
		testDispatcherConfig(),
	)
	return f
}
