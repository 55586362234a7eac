package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectOTel(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestOTelMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(previous) })

	m, err := NewOTelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSearch(ctx, "search", "", 3*time.Millisecond, 4, nil)
	m.RecordIndexOperation(ctx, "upsert", nil)
	m.RecordIndexOperation(ctx, "delete", nil)
	m.RecordRebuildDocument(ctx, OutcomeFailed)
	m.RecordNotification(ctx, "deleted", nil)
	m.RecordIndexRows(ctx, 8)

	data := collectOTel(t, reader)

	for _, name := range []string{
		"sitesearch.search.requests",
		"sitesearch.search.duration",
		"sitesearch.search.results",
		"sitesearch.index.operations",
		"sitesearch.rebuild.documents",
		"sitesearch.notifications",
		"sitesearch.index.rows",
	} {
		assert.Contains(t, data, name)
	}

	ops, ok := data["sitesearch.index.operations"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range ops.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	rows, ok := data["sitesearch.index.rows"].(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, int64(8), rows.DataPoints[0].Value)
}
