package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pushdispatch/internal/config"
	"pushdispatch/internal/types"
)

// lockReleaseTimeout bounds the advisory unlock issued when a run exits.
// The unlock runs on a context detached from the run deadline, so a timed-out
// run can still return the lock.
const lockReleaseTimeout = 5 * time.Second

// Coordinator orchestrates one delivery run end to end. It owns the run
// lifecycle: lock acquisition, work-set selection, credential fetch, the
// per-notification pipeline, and the run summary. Failures of individual
// notifications are isolated; only pre-loop failures (lock, selection,
// credentials) fail the whole run.
type Coordinator struct {
	notifications NotificationStore
	deliveries    DeliveryLedger
	resolver      *Resolver
	executor      *Executor
	ledger        *LedgerWriter
	locker        RunLocker
	creds         TokenSource
	metrics       RunMetrics
	policy        RetryPolicy
	clock         types.Clock
	logger        types.Logger
	cfg           config.DispatcherConfig
}

// NewCoordinator wires a Coordinator from its collaborators.
func NewCoordinator(
	notifications NotificationStore,
	deliveries DeliveryLedger,
	resolver *Resolver,
	executor *Executor,
	ledger *LedgerWriter,
	locker RunLocker,
	creds TokenSource,
	metrics RunMetrics,
	clock types.Clock,
	logger types.Logger,
	cfg config.DispatcherConfig,
) *Coordinator {
	return &Coordinator{
		notifications: notifications,
		deliveries:    deliveries,
		resolver:      resolver,
		executor:      executor,
		ledger:        ledger,
		locker:        locker,
		creds:         creds,
		metrics:       metrics,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Cooldown:    cfg.Cooldown,
		},
		clock:  clock,
		logger: logger,
		cfg:    cfg,
	}
}

// Run executes one dispatcher invocation and always returns a summary unless
// the run itself could not start. Zero-work outcomes (lock held elsewhere,
// nothing pending, single target missing or already delivered) are successful
// runs with all counters at zero and an explanatory message.
func (c *Coordinator) Run(ctx context.Context, input RunInput) (*types.RunSummary, error) {
	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	mode := types.RunModeBatch
	if input.NotificationID != "" {
		mode = types.RunModeSingle
	}

	logger := c.logger.With("run_id", runID, "mode", string(mode))
	logger.Info("dispatch run started", "dry_run", input.DryRun)

	summary := &types.RunSummary{
		Success: true,
		RunID:   runID,
		Mode:    mode,
		DryRun:  input.DryRun,
	}

	release, acquired, err := c.locker.TryAcquire(ctx, c.cfg.LockKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		logger.Info("run lock held elsewhere, skipping run")
		summary.Message = "Lock not acquired, skipping run"
		return summary, nil
	}
	defer func() {
		// The run context may already be past its deadline here; the unlock
		// must still reach the database or the lock leaks with the session.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		release(releaseCtx)
	}()

	var work []*types.PendingNotification
	if mode == types.RunModeSingle {
		work, err = c.selectSingle(ctx, input.NotificationID, summary)
	} else {
		work, err = c.selectBatch(ctx, input.Limit, summary)
	}
	if err != nil {
		return nil, err
	}
	if len(work) == 0 {
		logger.Info("no work selected", "message", summary.Message)
		c.finish(ctx, logger, summary)
		return summary, nil
	}

	summary.SelectedCount = len(work)
	logger.Info("work set selected", "selected_count", len(work))

	// One credential fetch covers every send in the run. A failure here is
	// fatal: nothing can be delivered without it.
	accessToken, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}

	for _, pending := range work {
		c.process(ctx, logger, pending, accessToken, input.DryRun, runID, summary)
	}

	c.finish(ctx, logger, summary)
	return summary, nil
}

// selectSingle builds the one-element work set for a targeted run. The three
// zero-work cases (missing or hidden, already delivered) set the summary
// message and return an empty set.
func (c *Coordinator) selectSingle(ctx context.Context, notificationID string, summary *types.RunSummary) ([]*types.PendingNotification, error) {
	n, err := c.notifications.Fetch(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		summary.Message = fmt.Sprintf("Notification %s not found or is hidden", notificationID)
		return nil, nil
	}

	delivered, err := c.deliveries.HasSuccess(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if delivered {
		summary.Message = fmt.Sprintf("Notification %s already successfully delivered", notificationID)
		return nil, nil
	}

	pending := &types.PendingNotification{Notification: *n}
	latest, err := c.deliveries.LatestAttempt(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		pending.AttemptCount = latest.RetryCount
		sentAt := latest.SentAt
		pending.LastAttemptAt = &sentAt
	}
	return []*types.PendingNotification{pending}, nil
}

// selectBatch builds the work set for a scan run.
func (c *Coordinator) selectBatch(ctx context.Context, limit int, summary *types.RunSummary) ([]*types.PendingNotification, error) {
	if limit <= 0 {
		limit = c.cfg.BatchLimit
	}
	work, err := c.notifications.FetchUndelivered(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(work) == 0 {
		summary.Message = "No pending notifications"
	}
	return work, nil
}

// process runs the full pipeline for one notification: concurrent-delivery
// re-check, retry policy, recipient resolution, fan-out, and ledger write.
// Errors are logged and absorbed so one bad notification never aborts the
// rest of the run.
func (c *Coordinator) process(
	ctx context.Context,
	logger types.Logger,
	pending *types.PendingNotification,
	accessToken string,
	dryRun bool,
	runID string,
	summary *types.RunSummary,
) {
	n := &pending.Notification

	// Re-check against deliveries recorded since selection. A concurrent
	// targeted run may have already succeeded.
	delivered, err := c.deliveries.HasSuccess(ctx, n.ID)
	if err != nil {
		logger.Error("failed to re-check delivery state", "notification_id", n.ID, "error", err.Error())
		return
	}
	if delivered {
		logger.Info("already delivered, skipping", "notification_id", n.ID)
		return
	}

	switch c.policy.Evaluate(pending.AttemptCount, pending.LastAttemptAt, c.clock.Now()) {
	case PolicyExhausted:
		logger.Info("skipped: retry budget exhausted", "notification_id", n.ID, "attempts", pending.AttemptCount)
		summary.SkippedMaxRetries++
		return
	case PolicyCooldown:
		logger.Info("skipped: cooldown active", "notification_id", n.ID)
		summary.SkippedCooldown++
		return
	}

	res := c.resolver.Resolve(ctx, n)
	switch res.Status {
	case ResolutionProfileError:
		logger.Error("failed to resolve recipient", "notification_id", n.ID, "user_id", n.UserID, "error", res.Err.Error())
		if err := c.ledger.RecordFailure(ctx, n, types.JSONMap{
			"run_id": runID,
			"error":  fmt.Sprintf("Error fetching profile: %v", res.Err),
		}); err != nil {
			logger.Error("failed to record profile failure", "notification_id", n.ID, "error", err.Error())
		}
		summary.SentFailed++
		summary.Processed++
		return

	case ResolutionMissingToken:
		logger.Info("skipped: no registration tokens", "notification_id", n.ID, "user_id", n.UserID)
		summary.MissingToken++
		if err := c.ledger.RecordSkip(ctx, n, types.ErrCodeMissingToken, types.JSONMap{
			"run_id": runID,
		}, dryRun); err != nil {
			logger.Error("failed to record missing token", "notification_id", n.ID, "error", err.Error())
		}
		summary.Processed++
		return

	case ResolutionSkippedPrefs:
		logger.Info("skipped: notification type disabled", "notification_id", n.ID, "type", string(n.Type))
		summary.SkippedPreferences++
		if err := c.ledger.RecordSkip(ctx, n, types.ErrCodeSkippedPrefs, types.JSONMap{
			"run_id":            runID,
			"notification_type": string(n.Type),
		}, dryRun); err != nil {
			logger.Error("failed to record preference skip", "notification_id", n.ID, "error", err.Error())
		}
		summary.Processed++
		return
	}

	logger.Info("dispatching notification",
		"notification_id", n.ID,
		"recipient", res.Profile.DisplayName,
		"endpoints", len(res.Endpoints),
	)

	responses, anySuccess := c.executor.Execute(ctx, accessToken, n, res.Endpoints, dryRun, runID)

	if err := c.ledger.RecordSend(ctx, n, res.Endpoints[0].Token, responses, anySuccess, dryRun); err != nil {
		logger.Error("failed to record delivery attempt", "notification_id", n.ID, "error", err.Error())
	}

	if anySuccess {
		summary.SentSuccess++
	} else {
		summary.SentFailed++
	}
	summary.Processed++
}

// finish emits the summary log line and run metrics.
func (c *Coordinator) finish(ctx context.Context, logger types.Logger, summary *types.RunSummary) {
	logger.Info("dispatch run finished",
		"selected_count", summary.SelectedCount,
		"processed", summary.Processed,
		"sent_success", summary.SentSuccess,
		"sent_failed", summary.SentFailed,
		"skipped_max_retries", summary.SkippedMaxRetries,
		"skipped_cooldown", summary.SkippedCooldown,
		"skipped_preferences", summary.SkippedPreferences,
		"missing_token", summary.MissingToken,
		"dry_run", summary.DryRun,
	)
	if c.metrics != nil {
		c.metrics.RecordRun(ctx, summary)
	}
}
