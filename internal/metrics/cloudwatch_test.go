package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func findDatum(t *testing.T, data []cwtypes.MetricDatum, name string) cwtypes.MetricDatum {
	t.Helper()
	for _, d := range data {
		if aws.ToString(d.MetricName) == name {
			return d
		}
	}
	t.Fatalf("metric %q not found", name)
	return cwtypes.MetricDatum{}
}

func dimValue(d cwtypes.MetricDatum, name string) string {
	for _, dim := range d.Dimensions {
		if aws.ToString(dim.Name) == name {
			return aws.ToString(dim.Value)
		}
	}
	return ""
}

func TestRecordCronRun(t *testing.T) {
	cw := &fakeCloudWatch{}
	emitter := NewEmitter(cw, "YardLink", discardLogger())

	emitter.RecordCronRun(context.Background(), "payouts", "success", 7, 1500*time.Millisecond)

	require.Len(t, cw.inputs, 1)
	input := cw.inputs[0]
	assert.Equal(t, "YardLink", aws.ToString(input.Namespace))
	require.Len(t, input.MetricData, 3)

	run := findDatum(t, input.MetricData, MetricCronRun)
	assert.Equal(t, 1.0, aws.ToFloat64(run.Value))
	assert.Equal(t, "payouts", dimValue(run, DimTask))
	assert.Equal(t, "success", dimValue(run, DimResult))

	items := findDatum(t, input.MetricData, MetricCronItems)
	assert.Equal(t, 7.0, aws.ToFloat64(items.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, items.Unit)

	duration := findDatum(t, input.MetricData, MetricCronDuration)
	assert.Equal(t, 1500.0, aws.ToFloat64(duration.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, duration.Unit)
}

func TestRecordEmailDelivery(t *testing.T) {
	cw := &fakeCloudWatch{}
	emitter := NewEmitter(cw, "YardLink", discardLogger())

	emitter.RecordEmailDelivery(context.Background(), "failure")

	require.Len(t, cw.inputs, 1)
	require.Len(t, cw.inputs[0].MetricData, 1)
	datum := cw.inputs[0].MetricData[0]
	assert.Equal(t, MetricEmailDelivery, aws.ToString(datum.MetricName))
	assert.Equal(t, "failure", dimValue(datum, DimResult))
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	emitter := NewEmitter(cw, "YardLink", discardLogger())

	assert.NotPanics(t, func() {
		emitter.RecordEmailQueueLag(context.Background(), 2*time.Second)
	})
	require.Len(t, cw.inputs, 1)
}
