package dispatch

import (
	"context"

	"pushdispatch/internal/types"
)

// dryRunMessageID is the synthetic message ID recorded for simulated sends.
const dryRunMessageID = "dry_run_simulated_id"

// AnySuccess reduces per-endpoint gateway results into the attempt outcome:
// the attempt succeeded if at least one endpoint accepted the message.
func AnySuccess(results []*types.GatewayResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

// Executor fans a notification out to each resolved endpoint sequentially and
// reduces the per-endpoint results into a single attempt outcome via
// AnySuccess.
type Executor struct {
	gateway Gateway
	logger  types.Logger
}

// NewExecutor creates an Executor over the given gateway.
func NewExecutor(gateway Gateway, logger types.Logger) *Executor {
	return &Executor{gateway: gateway, logger: logger}
}

// Execute sends the notification to every endpoint and returns the collected
// per-endpoint responses plus the any-success reduction. In dry-run mode no
// gateway call is made; each endpoint gets a synthesized success result so
// the run exercises the full selection and resolution path.
//
// Gateway errors never abort the fan-out: a failed endpoint is recorded and
// the remaining endpoints are still attempted.
func (e *Executor) Execute(
	ctx context.Context,
	accessToken string,
	n *types.Notification,
	endpoints []types.Endpoint,
	dryRun bool,
	runID string,
) (responses []types.JSONMap, anySuccess bool) {
	msg := &types.PushMessage{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          TitleFor(n.Type),
		Body:           n.Message,
		Action:         ActionFor(n.Type),
		JobID:          n.JobID,
		ActionData:     n.ActionData,
		Priority:       n.Priority,
	}

	results := make([]*types.GatewayResult, 0, len(endpoints))
	for _, ep := range endpoints {
		results = append(results, e.sendOne(ctx, accessToken, n, ep, msg, dryRun, runID))
	}

	responses = make([]types.JSONMap, 0, len(results))
	for _, r := range results {
		responses = append(responses, r.Raw)
	}
	return responses, AnySuccess(results)
}

// sendOne delivers to a single endpoint, or synthesizes the result in
// dry-run mode. The returned result always carries a run-ID-tagged Raw map.
func (e *Executor) sendOne(
	ctx context.Context,
	accessToken string,
	n *types.Notification,
	ep types.Endpoint,
	msg *types.PushMessage,
	dryRun bool,
	runID string,
) *types.GatewayResult {
	if dryRun {
		e.logger.Info("dry run: would send push message",
			"notification_id", n.ID,
			"platform", string(ep.Platform),
			"token", types.TruncateToken(ep.Token),
		)
		return &types.GatewayResult{
			Success:   true,
			MessageID: dryRunMessageID,
			Raw: types.JSONMap{
				"success":    1,
				"message_id": dryRunMessageID,
				"token":      types.TruncateToken(ep.Token),
				"run_id":     runID,
			},
		}
	}

	result, err := e.gateway.Send(ctx, accessToken, ep.Token, msg)
	if err != nil {
		e.logger.Error("error sending push message",
			"notification_id", n.ID,
			"token", types.TruncateToken(ep.Token),
			"error", err.Error(),
		)
		return &types.GatewayResult{
			Error: err.Error(),
			Raw: types.JSONMap{
				"error":  err.Error(),
				"token":  types.TruncateToken(ep.Token),
				"run_id": runID,
			},
		}
	}

	if result.Raw == nil {
		result.Raw = types.JSONMap{}
	}
	result.Raw["run_id"] = runID

	if result.Success {
		e.logger.Info("push message accepted",
			"notification_id", n.ID,
			"platform", string(ep.Platform),
			"message_id", result.MessageID,
		)
	} else {
		e.logger.Warn("push message rejected",
			"notification_id", n.ID,
			"platform", string(ep.Platform),
			"error", result.Error,
		)
	}
	return result
}
