package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*CompileMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cm, err := NewCompileMetrics(provider.Meter("test"))
	require.NoError(t, err)

	return cm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}

	return out
}

func TestRecordCompile(t *testing.T) {
	t.Parallel()

	cm, reader := newTestMetrics(t)
	ctx := context.Background()

	cm.RecordCompile(ctx, "ir", StatusOK, 2*time.Millisecond)
	cm.RecordCompile(ctx, "ir", StatusError, time.Millisecond)

	metrics := collect(t, reader)

	counter, ok := metrics[metricCompilesTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range counter.DataPoints {
		total += dp.Value
	}

	assert.Equal(t, int64(2), total)

	_, ok = metrics[metricCompileDuration].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestRecordParseError(t *testing.T) {
	t.Parallel()

	cm, reader := newTestMetrics(t)

	cm.RecordParseError(context.Background(), "file")

	metrics := collect(t, reader)

	counter, ok := metrics[metricParseErrorsTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, counter.DataPoints, 1)
	assert.Equal(t, int64(1), counter.DataPoints[0].Value)
}

func TestRecordCacheLookup(t *testing.T) {
	t.Parallel()

	cm, reader := newTestMetrics(t)
	ctx := context.Background()

	cm.RecordCacheLookup(ctx, true)
	cm.RecordCacheLookup(ctx, false)
	cm.RecordCacheLookup(ctx, false)

	metrics := collect(t, reader)

	counter, ok := metrics[metricCacheLookups].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	// One datapoint per outcome attribute.
	assert.Len(t, counter.DataPoints, 2)
}

func TestTrackInflight(t *testing.T) {
	t.Parallel()

	cm, reader := newTestMetrics(t)

	done := cm.TrackInflight(context.Background(), "ir")

	metrics := collect(t, reader)
	gauge, ok := metrics[metricInflightCompiles].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)

	done()

	metrics = collect(t, reader)
	gauge, _ = metrics[metricInflightCompiles].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(0), gauge.DataPoints[0].Value)
}
