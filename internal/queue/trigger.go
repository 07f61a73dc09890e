// Package queue provides the SQS-based producer used to request dispatcher
// runs asynchronously. The HTTP service enqueues a run request and the
// dispatch worker consumes it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pushdispatch/internal/config"
	"pushdispatch/internal/dispatch"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RunTrigger enqueues dispatch run requests. The message body is the JSON
// form of dispatch.RunInput; the consuming worker decodes it and executes a
// run with the same semantics as the synchronous HTTP path.
type RunTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewRunTrigger creates a RunTrigger publishing to the configured queue.
func NewRunTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *RunTrigger {
	return &RunTrigger{
		client:   client,
		queueURL: awsCfg.TriggerQueueURL,
		logger:   logger,
	}
}

// Enabled reports whether a trigger queue is configured.
func (t *RunTrigger) Enabled() bool {
	return t.queueURL != ""
}

// TriggerRun serializes the run input and dispatches it to the trigger queue.
// The reason attribute records what requested the run (schedule, manual,
// producer) for queue-side inspection.
func (t *RunTrigger) TriggerRun(ctx context.Context, input dispatch.RunInput, reason string) error {
	body, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal run input: %w", err)
	}

	sqsInput := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, sqsInput); err != nil {
		return fmt.Errorf("queue: failed to send run request to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "run request enqueued",
		"queue_url", t.queueURL,
		"notification_id", input.NotificationID,
		"limit", input.Limit,
		"dry_run", input.DryRun,
		"reason", reason,
	)

	return nil
}
