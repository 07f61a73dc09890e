package dispatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pushdispatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRunMetrics publishes run-level counters to CloudWatch, one datum
// per counter with a Mode dimension. Metric failures are logged and swallowed;
// observability never fails a run.
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ RunMetrics = (*CloudWatchRunMetrics)(nil)

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics publishing to the
// given namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRunMetrics {
	return &CloudWatchRunMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRun emits one datum per summary counter.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, summary *types.RunSummary) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String("Mode"),
			Value: aws.String(string(summary.Mode)),
		},
	}

	counters := []struct {
		name  string
		value int
	}{
		{"NotificationsSelected", summary.SelectedCount},
		{"NotificationsProcessed", summary.Processed},
		{"SendSuccess", summary.SentSuccess},
		{"SendFailed", summary.SentFailed},
		{"SkippedMaxRetries", summary.SkippedMaxRetries},
		{"SkippedCooldown", summary.SkippedCooldown},
		{"SkippedPreferences", summary.SkippedPreferences},
		{"MissingToken", summary.MissingToken},
	}

	data := make([]cwtypes.MetricDatum, 0, len(counters))
	for _, c := range counters {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(c.name),
			Value:      aws.Float64(float64(c.value)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record run metrics",
			"error", err.Error(),
			"run_id", summary.RunID,
		)
	}
}

// NoopRunMetrics discards all metrics. Used when no metrics backend is
// configured.
type NoopRunMetrics struct{}

var _ RunMetrics = (*NoopRunMetrics)(nil)

// RecordRun does nothing.
func (NoopRunMetrics) RecordRun(ctx context.Context, summary *types.RunSummary) {}
