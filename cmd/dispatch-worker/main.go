// Package main is the entrypoint for the dispatch worker Lambda function.
//
// The worker consumes run requests from the trigger SQS queue and executes
// them through the same run coordinator as the HTTP service. Each SQS message
// body is a JSON dispatch.RunInput; a scheduled (EventBridge) invocation
// arrives as an empty record set and executes a default batch run.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load service configuration and the AWS SDK configuration.
//  3. Connect the database pool.
//  4. Wire repositories, token source, gateway client, metrics, coordinator.
//  5. Register handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"pushdispatch/internal/config"
	"pushdispatch/internal/db"
	"pushdispatch/internal/dispatch"
	"pushdispatch/internal/external"
	"pushdispatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

// runner is the slice of the dispatch coordinator the handler needs.
type runner interface {
	Run(ctx context.Context, input dispatch.RunInput) (*types.RunSummary, error)
}

// Handler holds the dependencies for the dispatch worker Lambda handler.
type Handler struct {
	coordinator runner
	logger      types.Logger
}

// Handle processes an SQS event containing run requests. Each record is an
// independent run; a record that fails is reported in batchItemFailures so
// SQS retries only that message. An event with no records (scheduled
// invocation) executes one default batch run.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	if len(sqsEvent.Records) == 0 {
		if err := h.runOnce(ctx, dispatch.RunInput{}); err != nil {
			return response, err
		}
		return response, nil
	}

	for _, record := range sqsEvent.Records {
		input, ok := h.parseRecord(record)
		if !ok {
			// Permanent parse failure, ACK and move on.
			continue
		}
		if err := h.runOnce(ctx, input); err != nil {
			h.logger.Error("failed to process run request",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// parseRecord decodes the run input from an SQS message body.
func (h *Handler) parseRecord(record events.SQSMessage) (dispatch.RunInput, bool) {
	var input dispatch.RunInput
	if err := json.Unmarshal([]byte(record.Body), &input); err != nil {
		h.logger.Error("failed to unmarshal run request",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return dispatch.RunInput{}, false
	}
	return input, true
}

// runOnce executes a single dispatch run and logs its summary.
func (h *Handler) runOnce(ctx context.Context, input dispatch.RunInput) error {
	summary, err := h.coordinator.Run(ctx, input)
	if err != nil {
		return err
	}

	h.logger.Info("run completed",
		"run_id", summary.RunID,
		"mode", string(summary.Mode),
		"processed", summary.Processed,
		"sent_success", summary.SentSuccess,
		"sent_failed", summary.SentFailed,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("dispatch worker initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}
	clock := types.RealClock{}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	tokenSource := external.NewTokenSource(
		&http.Client{Timeout: cfg.FCM.TokenTimeout},
		cfg.FCM,
		clock,
		typedLogger,
	)
	gateway := external.NewFCMClient(
		&http.Client{Timeout: cfg.FCM.SendTimeout},
		cfg.FCM,
		typedLogger,
	)

	var metrics dispatch.RunMetrics = dispatch.NoopRunMetrics{}
	if cfg.AWS.MetricNamespace != "" {
		sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config", "error", err)
			os.Exit(1)
		}
		cwClient := cloudwatch.NewFromConfig(sdkCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		metrics = dispatch.NewCloudWatchRunMetrics(cwClient, cfg.AWS.MetricNamespace, typedLogger)
	}

	deliveries := db.NewDeliveryLogRepository(pool)
	coordinator := dispatch.NewCoordinator(
		db.NewNotificationRepository(pool),
		deliveries,
		dispatch.NewResolver(db.NewProfileRepository(pool)),
		dispatch.NewExecutor(gateway, typedLogger),
		dispatch.NewLedgerWriter(deliveries, clock),
		db.NewRunLockRepository(pool),
		tokenSource,
		metrics,
		clock,
		typedLogger,
		cfg.Dispatcher,
	)

	handler := &Handler{coordinator: coordinator, logger: typedLogger}

	logger.Info("dispatch worker initialized",
		"trigger_queue", cfg.AWS.TriggerQueueURL,
		"metric_namespace", cfg.AWS.MetricNamespace,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Enables local testing without the AWS Lambda RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{}"}]}' | go run ./cmd/dispatch-worker
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &sqsEvent); err != nil {
				logger.Error("failed to parse stdin as SQS event", "error", err)
				os.Exit(1)
			}
		}
		response, err := handler.Handle(ctx, sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		pool.Close()
		return
	}

	lambda.Start(handler.Handle)
}
