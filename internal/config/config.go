// Package config defines the configuration for the push dispatch platform.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, optionally seeded from a local .env file.
package config

import (
	"time"

	"pushdispatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used to prevent accidental logging of sensitive configuration values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"push-dispatcher"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server     ServerConfig
	Database   DatabaseConfig
	FCM        FCMConfig
	Dispatcher DispatcherConfig
	AWS        AWSConfig
}

// ServerConfig holds the HTTP trigger server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// FCMConfig holds the push gateway project and service-account credentials
// used for the JWT-bearer token exchange.
type FCMConfig struct {
	ProjectID    string       `envconfig:"FCM_PROJECT_ID" validate:"required"`
	ClientEmail  string       `envconfig:"FCM_CLIENT_EMAIL" validate:"required,email"`
	PrivateKey   SecretString `envconfig:"FCM_PRIVATE_KEY" validate:"required"`
	PrivateKeyID string       `envconfig:"FCM_PRIVATE_KEY_ID"`

	// AndroidChannel is the Android notification channel stamped onto every
	// outgoing message.
	AndroidChannel string `envconfig:"FCM_ANDROID_CHANNEL" default:"push_dispatch_channel"`

	// Override endpoints for testing. Empty means the Google defaults.
	TokenURL string `envconfig:"FCM_TOKEN_URL"`
	SendURL  string `envconfig:"FCM_SEND_URL"`

	TokenTimeout time.Duration `envconfig:"FCM_TOKEN_TIMEOUT" default:"10s"`
	SendTimeout  time.Duration `envconfig:"FCM_SEND_TIMEOUT" default:"10s"`
}

// DispatcherConfig holds the retry arithmetic and run-scoping parameters.
type DispatcherConfig struct {
	BatchLimit  int           `envconfig:"DISPATCH_BATCH_LIMIT" default:"50" validate:"min=1"`
	MaxAttempts int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	Cooldown    time.Duration `envconfig:"DISPATCH_COOLDOWN" default:"2m"`
	// LockKey is the fixed advisory-lock key serializing dispatcher runs.
	LockKey    int64         `envconfig:"DISPATCH_LOCK_KEY" default:"1234567890"`
	RunTimeout time.Duration `envconfig:"DISPATCH_RUN_TIMEOUT" default:"60s"`
}

// AWSConfig holds AWS regional settings and optional resource identifiers.
// TriggerQueueURL and MetricNamespace are optional: when empty, async
// triggering and CloudWatch metrics are disabled respectively.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	TriggerQueueURL string `envconfig:"SQS_DISPATCH_TRIGGER"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PushDispatch"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}
