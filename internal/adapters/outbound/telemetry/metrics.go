// Package telemetry implements the scan metrics port on OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/jsonrpc-scan/internal/ports/outbound"
)

// Compile-time check that Metrics implements ScanMetricsRecorder.
var _ outbound.ScanMetricsRecorder = (*Metrics)(nil)

// Metrics records scan-level metrics through OpenTelemetry.
type Metrics struct {
	scanLatency   metric.Float64Histogram
	blocksScanned metric.Int64Counter
	blocksFailed  metric.Int64Counter
	fieldDiffs    metric.Int64Counter
	fetchErrors   metric.Int64Counter
}

// NewMetrics creates a metrics recorder on the global meter provider.
// meterName should typically be the service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a metrics recorder on a custom provider.
func NewMetricsWithProvider(mp metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := mp.Meter(meterName)

	latency, err := meter.Float64Histogram(
		"scan.block.duration_seconds",
		metric.WithDescription("Wall-clock time to fetch, normalize and diff one block"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan.block.duration_seconds histogram: %w", err)
	}

	scanned, err := meter.Int64Counter(
		"scan.blocks.total",
		metric.WithDescription("Total number of blocks that produced a diff report"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan.blocks.total counter: %w", err)
	}

	failed, err := meter.Int64Counter(
		"scan.blocks.failed_total",
		metric.WithDescription("Total number of blocks that could not produce a report"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan.blocks.failed_total counter: %w", err)
	}

	diffs, err := meter.Int64Counter(
		"scan.field_diffs.total",
		metric.WithDescription("Total number of mismatching fields across all scanned blocks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan.field_diffs.total counter: %w", err)
	}

	fetchErrs, err := meter.Int64Counter(
		"scan.fetch_errors.total",
		metric.WithDescription("Terminal endpoint fetch failures by endpoint and kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan.fetch_errors.total counter: %w", err)
	}

	return &Metrics{
		scanLatency:   latency,
		blocksScanned: scanned,
		blocksFailed:  failed,
		fieldDiffs:    diffs,
		fetchErrors:   fetchErrs,
	}, nil
}

// RecordBlockScanned records one completed block pipeline.
func (m *Metrics) RecordBlockScanned(ctx context.Context, duration time.Duration, agreement bool) {
	attrs := metric.WithAttributes(attribute.Bool("agreement", agreement))
	m.scanLatency.Record(ctx, duration.Seconds(), attrs)
	m.blocksScanned.Add(ctx, 1, attrs)
}

// RecordFieldDiffs records the mismatching field count for one block.
func (m *Metrics) RecordFieldDiffs(ctx context.Context, count int) {
	m.fieldDiffs.Add(ctx, int64(count))
}

// RecordFetchError records one terminal endpoint failure.
func (m *Metrics) RecordFetchError(ctx context.Context, endpoint, kind string) {
	m.fetchErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("kind", kind),
	))
}

// RecordBlockFailed records a block that yielded a Failed marker.
func (m *Metrics) RecordBlockFailed(ctx context.Context) {
	m.blocksFailed.Add(ctx, 1)
}
