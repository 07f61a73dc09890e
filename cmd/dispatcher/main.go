// Package main is the entry point for the push dispatcher HTTP service.
//
// It loads configuration, connects the database pool, wires the delivery
// pipeline (repositories, token source, gateway client, run coordinator),
// and serves the run endpoints with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushdispatch/internal/api"
	"pushdispatch/internal/config"
	"pushdispatch/internal/db"
	"pushdispatch/internal/dispatch"
	"pushdispatch/internal/external"
	"pushdispatch/internal/queue"
	"pushdispatch/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info/Error/Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
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

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("push dispatcher starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	typedLogger := &slogAdapter{logger: logger}
	clock := types.RealClock{}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	notifications := db.NewNotificationRepository(pool)
	profiles := db.NewProfileRepository(pool)
	deliveries := db.NewDeliveryLogRepository(pool)
	locker := db.NewRunLockRepository(pool)

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

	metrics, trigger, err := buildAWSComponents(ctx, cfg.AWS, typedLogger, logger)
	if err != nil {
		return err
	}

	coordinator := dispatch.NewCoordinator(
		notifications,
		deliveries,
		dispatch.NewResolver(profiles),
		dispatch.NewExecutor(gateway, typedLogger),
		dispatch.NewLedgerWriter(deliveries, clock),
		locker,
		tokenSource,
		metrics,
		clock,
		typedLogger,
		cfg.Dispatcher,
	)

	handler := api.NewHandler(coordinator, trigger, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	handler.Routes(r)

	return serveHTTP(r, cfg, logger)
}

// buildAWSComponents creates the CloudWatch metrics publisher and the SQS run
// trigger. Either may be disabled: metrics fall back to a no-op when no
// namespace is set, and the trigger is nil when no queue URL is configured.
func buildAWSComponents(
	ctx context.Context,
	awsCfg config.AWSConfig,
	typedLogger types.Logger,
	logger *slog.Logger,
) (dispatch.RunMetrics, api.Enqueuer, error) {
	needsAWS := awsCfg.MetricNamespace != "" || awsCfg.TriggerQueueURL != ""
	if !needsAWS {
		return dispatch.NoopRunMetrics{}, nil, nil
	}

	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	var metrics dispatch.RunMetrics = dispatch.NoopRunMetrics{}
	if awsCfg.MetricNamespace != "" {
		cwClient := cloudwatch.NewFromConfig(sdkCfg, func(o *cloudwatch.Options) {
			if awsCfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
			}
		})
		metrics = dispatch.NewCloudWatchRunMetrics(cwClient, awsCfg.MetricNamespace, typedLogger)
	}

	var trigger api.Enqueuer
	if awsCfg.TriggerQueueURL != "" {
		sqsClient := sqs.NewFromConfig(sdkCfg, func(o *sqs.Options) {
			if awsCfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
			}
		})
		trigger = queue.NewRunTrigger(sqsClient, awsCfg, logger)
	}

	return metrics, trigger, nil
}

// serveHTTP runs the HTTP server with graceful shutdown.
func serveHTTP(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
