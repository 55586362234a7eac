package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics records the same domain measurements as Metrics through the
// global OpenTelemetry meter provider.
type OTelMetrics struct {
	searchRequests   metric.Int64Counter
	searchDuration   metric.Float64Histogram
	searchResults    metric.Int64Histogram
	indexOperations  metric.Int64Counter
	rebuildDocuments metric.Int64Counter
	notifications    metric.Int64Counter
	indexRows        metric.Int64Gauge
}

var _ Recorder = (*OTelMetrics)(nil)

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/sitesearch")

	m := &OTelMetrics{}
	var err error

	m.searchRequests, err = meter.Int64Counter(
		"sitesearch.search.requests",
		metric.WithDescription("Total number of search and count queries"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search requests counter: %w", err)
	}

	m.searchDuration, err = meter.Float64Histogram(
		"sitesearch.search.duration",
		metric.WithDescription("Search query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	m.searchResults, err = meter.Int64Histogram(
		"sitesearch.search.results",
		metric.WithDescription("Number of results returned per query"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search results histogram: %w", err)
	}

	m.indexOperations, err = meter.Int64Counter(
		"sitesearch.index.operations",
		metric.WithDescription("Total number of index row operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create index operations counter: %w", err)
	}

	m.rebuildDocuments, err = meter.Int64Counter(
		"sitesearch.rebuild.documents",
		metric.WithDescription("Documents processed by index rebuilds"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rebuild documents counter: %w", err)
	}

	m.notifications, err = meter.Int64Counter(
		"sitesearch.notifications",
		metric.WithDescription("Change notifications received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications counter: %w", err)
	}

	m.indexRows, err = meter.Int64Gauge(
		"sitesearch.index.rows",
		metric.WithDescription("Number of rows in the search table after the last rebuild"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create index rows gauge: %w", err)
	}

	return m, nil
}

// RecordSearch implements Recorder
func (m *OTelMetrics) RecordSearch(ctx context.Context, operation, documentType string, duration time.Duration, results int, err error) {
	if documentType == "" {
		documentType = "all"
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("document_type", documentType),
		attribute.String("status", statusLabel(err)),
	)
	m.searchRequests.Add(ctx, 1, attrs)
	m.searchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("operation", operation)))
	if err == nil {
		m.searchResults.Record(ctx, int64(results), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// RecordIndexOperation implements Recorder
func (m *OTelMetrics) RecordIndexOperation(ctx context.Context, action string, err error) {
	m.indexOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", statusLabel(err)),
	))
}

// RecordRebuildDocument implements Recorder
func (m *OTelMetrics) RecordRebuildDocument(ctx context.Context, outcome string) {
	m.rebuildDocuments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordNotification implements Recorder
func (m *OTelMetrics) RecordNotification(ctx context.Context, action string, err error) {
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("status", statusLabel(err)),
	))
}

// RecordIndexRows implements Recorder
func (m *OTelMetrics) RecordIndexRows(ctx context.Context, rows int) {
	m.indexRows.Record(ctx, int64(rows))
}
