package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/reqengine/internal/dedup"
)

var (
	// IndexOperations counts index calls.
	// Labels: backend, op (add, remove, nearest), result (success, error)
	IndexOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqengine",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Total number of vector index operations",
		},
		[]string{"backend", "op", "result"},
	)

	// IndexLatency tracks how long index calls take.
	IndexLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reqengine",
			Subsystem: "index",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

// instrumented records metrics around an Index.
type instrumented struct {
	backend string
	next    dedup.Index
}

// Instrument wraps idx so each call is counted and timed under backend.
func Instrument(backend string, idx dedup.Index) dedup.Index {
	return &instrumented{backend: backend, next: idx}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	IndexLatency.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	IndexOperations.WithLabelValues(i.backend, op, result).Inc()
}

func (i *instrumented) Add(ctx context.Context, sessionID, id string, vec []float32) error {
	start := time.Now()
	err := i.next.Add(ctx, sessionID, id, vec)
	i.observe("add", start, err)
	return err
}

func (i *instrumented) Remove(ctx context.Context, sessionID, id string) error {
	start := time.Now()
	err := i.next.Remove(ctx, sessionID, id)
	i.observe("remove", start, err)
	return err
}

func (i *instrumented) Nearest(ctx context.Context, sessionID string, vec []float32) (dedup.Match, bool, error) {
	start := time.Now()
	m, ok, err := i.next.Nearest(ctx, sessionID, vec)
	i.observe("nearest", start, err)
	return m, ok, err
}
