package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/reqengine/internal/embeddings"

// Embedding operations, used as the "operation" attribute.
const (
	opDocuments = "embed_documents"
	opQuery     = "embed_query"
)

// metrics records embedding latency and volume for one provider. Instrument
// creation errors are reported through otel.Handle and leave that
// instrument nil.
type metrics struct {
	provider string
	duration metric.Float64Histogram
	texts    metric.Int64Counter
	errors   metric.Int64Counter
}

func newMetrics(provider string) *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{provider: provider}

	var err error
	m.duration, err = meter.Float64Histogram(
		"reqengine.embedding.duration_seconds",
		metric.WithDescription("Time spent embedding use case and query text"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.texts, err = meter.Int64Counter(
		"reqengine.embedding.texts_total",
		metric.WithDescription("Texts sent to the embedding provider"),
		metric.WithUnit("{text}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.errors, err = meter.Int64Counter(
		"reqengine.embedding.errors_total",
		metric.WithDescription("Failed embedding calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return m
}

// observe records one embedding call that started at start.
func (m *metrics) observe(ctx context.Context, op, model string, texts int, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", m.provider),
		attribute.String("model", model),
		attribute.String("operation", op),
	)
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if texts > 0 && m.texts != nil {
		m.texts.Add(ctx, int64(texts), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
