package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"relaypoint/internal/types"
)

// CloudWatch metric names and dimensions for the dispatch pipeline.
const (
	MetricNamespace = "RelayPoint/Dispatch"

	MetricEventFired      = "EventFired"
	MetricRuleMatched     = "RuleMatched"
	MetricRuleVetoed      = "RuleVetoed"
	MetricDispatchOutcome = "DispatchOutcome"
	MetricQueueLag        = "QueueLag"

	DimTrigger = "Trigger"
	DimResult  = "Result"
)

// Metrics receives dispatch pipeline counters. Implementations must be safe
// for concurrent use; failures to publish are logged, never surfaced.
type Metrics interface {
	RecordEventFired(ctx context.Context, trigger types.TriggerID)
	RecordRuleMatched(ctx context.Context, trigger types.TriggerID)
	RecordRuleVetoed(ctx context.Context, trigger types.TriggerID)
	RecordDispatch(ctx context.Context, trigger types.TriggerID, success bool)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes dispatch counters to AWS CloudWatch.
type CloudWatchMetrics struct {
	client CloudWatchClient
	logger types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publisher.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, logger: logger}
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(MetricNamespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

func triggerDim(trigger types.TriggerID) cwtypes.Dimension {
	return cwtypes.Dimension{
		Name:  aws.String(DimTrigger),
		Value: aws.String(string(trigger)),
	}
}

func (m *CloudWatchMetrics) RecordEventFired(ctx context.Context, trigger types.TriggerID) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricEventFired),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{triggerDim(trigger)},
	})
}

func (m *CloudWatchMetrics) RecordRuleMatched(ctx context.Context, trigger types.TriggerID) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricRuleMatched),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{triggerDim(trigger)},
	})
}

func (m *CloudWatchMetrics) RecordRuleVetoed(ctx context.Context, trigger types.TriggerID) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricRuleVetoed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{triggerDim(trigger)},
	})
}

func (m *CloudWatchMetrics) RecordDispatch(ctx context.Context, trigger types.TriggerID, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDispatchOutcome),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			triggerDim(trigger),
			{
				Name:  aws.String(DimResult),
				Value: aws.String(result),
			},
		},
	})
}

// RecordQueueLag tracks the delay between event enqueue and worker
// processing start, including SQS visibility timeout and backlog.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

var _ Metrics = NopMetrics{}

// NopMetrics discards all metrics. Used in tests and local development.
type NopMetrics struct{}

func (NopMetrics) RecordEventFired(context.Context, types.TriggerID)     {}
func (NopMetrics) RecordRuleMatched(context.Context, types.TriggerID)    {}
func (NopMetrics) RecordRuleVetoed(context.Context, types.TriggerID)     {}
func (NopMetrics) RecordDispatch(context.Context, types.TriggerID, bool) {}
func (NopMetrics) RecordQueueLag(context.Context, time.Duration)         {}
