package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics records field encryption activity.
type BusinessMetrics interface {
	// RecordOperation counts one operation. domain is "keys", "encryption" or
	// "reencrypt"; status is "success" or "error".
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration observes an operation latency in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordKeyVersion publishes the current primary key version.
	RecordKeyVersion(ctx context.Context, version uint)

	// RecordCacheLookup counts a hit or miss against a named cache.
	RecordCacheLookup(ctx context.Context, cache string, hit bool)

	// RecordReencryptedRecords adds count rows of target with the given
	// outcome ("reencrypted", "skipped", "failed").
	RecordReencryptedRecords(ctx context.Context, target, outcome string, count int)
}

type businessMetrics struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
	keyVersionGauge  metric.Int64Gauge
	cacheCounter     metric.Int64Counter
	recordCounter    metric.Int64Counter
}

// NewBusinessMetrics creates the instruments on a meter named after namespace.
// Every metric name is prefixed with namespace (e.g. "fieldcrypt_operations_total").
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)
	b := &businessMetrics{}
	var err error

	b.operationCounter, err = meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of field encryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	b.durationHisto, err = meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of field encryption operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	b.keyVersionGauge, err = meter.Int64Gauge(
		fmt.Sprintf("%s_current_key_version", namespace),
		metric.WithDescription("Version of the primary encryption key"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key version gauge: %w", err)
	}

	b.cacheCounter, err = meter.Int64Counter(
		fmt.Sprintf("%s_cache_lookups_total", namespace),
		metric.WithDescription("Cache lookups by cache and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookup counter: %w", err)
	}

	b.recordCounter, err = meter.Int64Counter(
		fmt.Sprintf("%s_reencrypt_records_total", namespace),
		metric.WithDescription("Rows processed by re-encryption jobs by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create re-encryption record counter: %w", err)
	}

	return b, nil
}

func operationAttributes(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operationCounter.Add(ctx, 1, operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durationHisto.Record(ctx, duration.Seconds(), operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordKeyVersion(ctx context.Context, version uint) {
	b.keyVersionGauge.Record(ctx, int64(version))
}

func (b *businessMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	b.cacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("result", result),
	))
}

func (b *businessMetrics) RecordReencryptedRecords(ctx context.Context, target, outcome string, count int) {
	if count <= 0 {
		return
	}
	b.recordCounter.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("outcome", outcome),
	))
}

// NoOpBusinessMetrics discards every measurement. Used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (n *NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

func (n *NoOpBusinessMetrics) RecordKeyVersion(context.Context, uint) {}

func (n *NoOpBusinessMetrics) RecordCacheLookup(context.Context, string, bool) {}

func (n *NoOpBusinessMetrics) RecordReencryptedRecords(context.Context, string, string, int) {}
