package llm

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reqengine",
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Latency of LLM completion calls including retries.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"backend"})

	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reqengine",
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "LLM completion calls by backend and result.",
	}, []string{"backend", "result"})
)

func recordCall(_ context.Context, backend string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	callDuration.WithLabelValues(backend).Observe(d.Seconds())
	callsTotal.WithLabelValues(backend, result).Inc()
}
