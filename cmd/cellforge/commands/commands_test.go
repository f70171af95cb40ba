package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/cellforge/pkg/cell"
)

func TestRenderResults_JSON(t *testing.T) {
	t.Parallel()

	results := []compileResult{{Name: "load", ID: "c0", Key: "abc", Defs: []string{"data"}}}

	var buf bytes.Buffer
	require.NoError(t, renderResults(&buf, results, "json", false))

	var decoded []compileResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, results, decoded)
}

func TestRenderResults_Table(t *testing.T) {
	t.Parallel()

	results := []compileResult{
		{Name: "load", Key: "abc", Defs: []string{"data"}, Language: "python", Size: 10},
		{Name: "bad", Error: "syntax error at line 1, column 5"},
	}

	var buf bytes.Buffer
	require.NoError(t, renderResults(&buf, results, "table", false))

	out := buf.String()
	assert.Contains(t, out, "load")
	assert.Contains(t, out, "syntax error")
}

func TestRenderResults_BadFormat(t *testing.T) {
	t.Parallel()

	assert.Error(t, renderResults(&bytes.Buffer{}, nil, "xml", false))
}

func TestCompileSingle_Result(t *testing.T) {
	t.Parallel()

	cc := &CompileCommand{}
	result := cc.compileSingle("y = x + 1\n", "main", newTelemetry(false))

	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"y"}, result.Defs)
	assert.Equal(t, []string{"x"}, result.Refs)
	assert.Equal(t, "python", result.Language)
}

func TestCompileSingle_ParseError(t *testing.T) {
	t.Parallel()

	cc := &CompileCommand{}
	result := cc.compileSingle("def broken(:\n", "main", newTelemetry(false))

	assert.NotEmpty(t, result.Error)
}

func TestDetectDrift(t *testing.T) {
	t.Parallel()

	oldCell, err := cell.Compile("x = 1\n", "old", cell.Options{})
	require.NoError(t, err)

	newCell, err := cell.Compile("y = x + 1\n", "new", cell.Options{})
	require.NoError(t, err)

	report := detectDrift(oldCell, newCell)

	assert.False(t, report.Same)
	assert.Equal(t, []string{"y"}, report.AddedDefs)
	assert.Equal(t, []string{"x"}, report.RemovedDefs)
	assert.Equal(t, []string{"x"}, report.AddedRefs)
	assert.NotEmpty(t, report.SourceChange)
}

func TestDetectDrift_Identical(t *testing.T) {
	t.Parallel()

	a, err := cell.Compile("x = 1\n", "a", cell.Options{})
	require.NoError(t, err)

	b, err := cell.Compile("x = 1\n", "b", cell.Options{})
	require.NoError(t, err)

	report := detectDrift(a, b)

	assert.True(t, report.Same)
	assert.Empty(t, report.AddedDefs)
	assert.Empty(t, report.SourceChange)
}

func TestTelemetry_CompileTracksInflight(t *testing.T) {
	t.Parallel()

	tel := newTelemetry(true)
	require.NotNil(t, tel.reader)

	cc := &CompileCommand{}
	cc.compileSingle("x = 1\n", "main", tel)
	cc.compileSingle("def broken(:\n", "main", tel)

	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.reader.Collect(context.Background(), &rm))

	var inflight *metricdata.Sum[int64]

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == "cellforge.inflight.compiles" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				inflight = &sum
			}
		}
	}

	// Each compile increments the gauge and releases it on completion,
	// so the collected sum is back to zero.
	require.NotNil(t, inflight)
	require.NotEmpty(t, inflight.DataPoints)

	for _, dp := range inflight.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestTelemetry_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	tel := newTelemetry(false)

	assert.NotPanics(t, func() {
		tel.compile("file", "ok", 0)
		tel.cacheLookup(true)
		tel.report()
	})
}
