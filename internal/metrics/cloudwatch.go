// Package metrics emits operational metrics to CloudWatch. Emission is
// best-effort: a metrics failure is logged and never propagated to the
// caller.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	MetricCronRun       = "CronRun"
	MetricCronItems     = "CronItemsProcessed"
	MetricCronDuration  = "CronDurationMillis"
	MetricEmailDelivery = "EmailDeliveryAttempt"
	MetricEmailQueueLag = "EmailQueueLagMillis"

	DimTask   = "Task"
	DimResult = "Result"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Emitter publishes metrics to a single CloudWatch namespace.
type Emitter struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewEmitter creates an Emitter for the given namespace.
func NewEmitter(client CloudWatchClient, namespace string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordCronRun emits the outcome of one scheduled task invocation:
// a run count with Task and Result dimensions, the number of items the
// run touched, and its wall-clock duration.
func (e *Emitter) RecordCronRun(ctx context.Context, task string, result string, items int, duration time.Duration) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricCronRun),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTask), Value: aws.String(task)},
				{Name: aws.String(DimResult), Value: aws.String(result)},
			},
		},
		{
			MetricName: aws.String(MetricCronItems),
			Value:      aws.Float64(float64(items)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTask), Value: aws.String(task)},
			},
		},
		{
			MetricName: aws.String(MetricCronDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimTask), Value: aws.String(task)},
			},
		},
	})
}

// RecordEmailDelivery emits one email delivery outcome.
func (e *Emitter) RecordEmailDelivery(ctx context.Context, result string) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricEmailDelivery),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimResult), Value: aws.String(result)},
			},
		},
	})
}

// RecordEmailQueueLag emits the delay between message enqueue and
// worker processing start.
func (e *Emitter) RecordEmailQueueLag(ctx context.Context, lag time.Duration) {
	e.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricEmailQueueLag),
			Value:      aws.Float64(float64(lag.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
	})
}

func (e *Emitter) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(e.namespace),
		MetricData: data,
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish metrics", "namespace", e.namespace, "error", err)
	}
}
