package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCompilesTotal    = "cellforge.compiles.total"
	metricCompileDuration  = "cellforge.compile.duration.seconds"
	metricParseErrorsTotal = "cellforge.parse_errors.total"
	metricCacheLookups     = "cellforge.cache.lookups.total"
	metricInflightCompiles = "cellforge.inflight.compiles"

	attrFactory = "factory"
	attrStatus  = "status"
	attrOutcome = "outcome"

	// StatusOK and StatusError are the values recorded under the status
	// attribute.
	StatusOK    = "ok"
	StatusError = "error"

	// OutcomeHit and OutcomeMiss are the values recorded under the
	// outcome attribute of cache lookups.
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

// durationBucketBoundaries covers 100µs to 5s. A single cell parses and
// analyzes in well under a millisecond; the upper buckets exist for
// pathological notebook cells.
var durationBucketBoundaries = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// CompileMetrics holds the OTel instruments for the compilation pipeline.
type CompileMetrics struct {
	compilesTotal    metric.Int64Counter
	compileDuration  metric.Float64Histogram
	parseErrorsTotal metric.Int64Counter
	cacheLookups     metric.Int64Counter
	inflightCompiles metric.Int64UpDownCounter
}

// NewCompileMetrics creates compilation metric instruments from the given meter.
func NewCompileMetrics(mt metric.Meter) (*CompileMetrics, error) {
	b := newMetricBuilder(mt)

	cm := &CompileMetrics{
		compilesTotal:    b.counter(metricCompilesTotal, "Total number of cell compilations", "{compile}"),
		compileDuration:  b.histogram(metricCompileDuration, "Cell compilation duration in seconds", "s", durationBucketBoundaries...),
		parseErrorsTotal: b.counter(metricParseErrorsTotal, "Total number of cell parse failures", "{error}"),
		cacheLookups:     b.counter(metricCacheLookups, "Total number of compile cache lookups", "{lookup}"),
		inflightCompiles: b.upDownCounter(metricInflightCompiles, "Number of in-flight compilations", "{compile}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return cm, nil
}

// RecordCompile records a completed compilation with its factory kind,
// status, and duration.
func (cm *CompileMetrics) RecordCompile(ctx context.Context, factory, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrFactory, factory),
		attribute.String(attrStatus, status),
	)

	cm.compilesTotal.Add(ctx, 1, attrs)
	cm.compileDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordParseError records a cell that failed to parse.
func (cm *CompileMetrics) RecordParseError(ctx context.Context, factory string) {
	cm.parseErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFactory, factory),
	))
}

// RecordCacheLookup records a compile cache hit or miss.
func (cm *CompileMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	outcome := OutcomeMiss
	if hit {
		outcome = OutcomeHit
	}

	cm.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrOutcome, outcome),
	))
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (cm *CompileMetrics) TrackInflight(ctx context.Context, factory string) func() {
	attrs := metric.WithAttributes(attribute.String(attrFactory, factory))
	cm.inflightCompiles.Add(ctx, 1, attrs)

	return func() {
		cm.inflightCompiles.Add(ctx, -1, attrs)
	}
}
