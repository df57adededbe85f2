package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/reqengine/internal/http"

// Attribute keys follow the OpenTelemetry HTTP conventions.
const (
	attrMethod = attribute.Key("http.request.method")
	attrRoute  = attribute.Key("http.route")
	attrStatus = attribute.Key("http.response.status_code")
)

// requestMetrics records OTEL request metrics. The Prometheus registry
// served on /metrics is separate and filled by the pipeline and llm
// packages.
type requestMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	bodySize  metric.Int64Histogram
	replySize metric.Int64Histogram
	inFlight  metric.Int64UpDownCounter
}

// newRequestMetrics creates the instruments on meter. An instrument that
// cannot be created is reported through otel.Handle and skipped.
func newRequestMetrics(meter metric.Meter) *requestMetrics {
	m := &requestMetrics{}
	var err error
	m.requests, err = meter.Int64Counter(
		"reqengine.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	otelHandle(err)
	m.duration, err = meter.Float64Histogram(
		"reqengine.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency. Document uploads fill the upper buckets."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	otelHandle(err)
	m.bodySize, err = meter.Int64Histogram(
		"reqengine.http.request_size_bytes",
		metric.WithDescription("Declared request body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000, 10000000),
	)
	otelHandle(err)
	m.replySize, err = meter.Int64Histogram(
		"reqengine.http.response_size_bytes",
		metric.WithDescription("Response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	otelHandle(err)
	m.inFlight, err = meter.Int64UpDownCounter(
		"reqengine.http.active_requests",
		metric.WithDescription("Requests being served"),
		metric.WithUnit("{request}"),
	)
	otelHandle(err)
	return m
}

func otelHandle(err error) {
	if err != nil {
		otel.Handle(err)
	}
}

// middleware records one measurement set per request, labelled by route
// template.
func (m *requestMetrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := req.Context()
		if m.inFlight != nil {
			m.inFlight.Add(ctx, 1)
			defer m.inFlight.Add(ctx, -1)
		}

		err := next(c)

		attrs := metric.WithAttributes(
			attrMethod.String(req.Method),
			attrRoute.String(normalizePath(c.Path())),
			attrStatus.Int(statusOf(c, err)),
		)
		if m.requests != nil {
			m.requests.Add(ctx, 1, attrs)
		}
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if m.bodySize != nil && req.ContentLength > 0 {
			m.bodySize.Record(ctx, req.ContentLength, attrs)
		}
		if m.replySize != nil {
			m.replySize.Record(ctx, c.Response().Size, attrs)
		}
		return err
	}
}

// statusOf is the status the error handler will write for err. Handler
// errors are not committed to the response until the chain returns.
func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// normalizePath labels requests by their route template. Echo reports
// "/api/v1/sessions/:id" rather than the concrete id, so only unmatched
// requests need a fixed label.
func normalizePath(path string) string {
	if path == "" || path == "/*" {
		return "unmatched"
	}
	return path
}
