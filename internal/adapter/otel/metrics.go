package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/ReleaseForge/internal/service"
)

const meterName = "releaseforge"

var _ service.SaveRecorder = (*Metrics)(nil)

// Metrics holds all save metric instruments.
type Metrics struct {
	Attempts          metric.Int64Counter
	Retries           metric.Int64Counter
	Saves             metric.Int64Counter
	DependentFailures metric.Int64Counter
	SaveDuration      metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments on mp.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Attempts, err = meter.Int64Counter("releaseforge.save.attempts",
		metric.WithDescription("Plan write attempts"))
	if err != nil {
		return nil, err
	}

	m.Retries, err = meter.Int64Counter("releaseforge.save.retries",
		metric.WithDescription("Plan write retries by failure class"))
	if err != nil {
		return nil, err
	}

	m.Saves, err = meter.Int64Counter("releaseforge.saves",
		metric.WithDescription("Finished section saves by outcome"))
	if err != nil {
		return nil, err
	}

	m.DependentFailures, err = meter.Int64Counter("releaseforge.save.dependent_failures",
		metric.WithDescription("Failed post-commit writes by entity kind"))
	if err != nil {
		return nil, err
	}

	m.SaveDuration, err = meter.Float64Histogram("releaseforge.save.duration_seconds",
		metric.WithDescription("Section save duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordAttempt(ctx context.Context, section string) {
	m.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("section", section)))
}

func (m *Metrics) RecordRetry(ctx context.Context, section, class string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("section", section),
		attribute.String("class", class),
	))
}

func (m *Metrics) RecordSave(ctx context.Context, section, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("section", section),
		attribute.String("outcome", outcome),
	)
	m.Saves.Add(ctx, 1, attrs)
	m.SaveDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) RecordDependentFailure(ctx context.Context, kind string) {
	m.DependentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
