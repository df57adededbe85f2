package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// documentsProcessed counts document requests.
	// Labels: path (direct, chunked)
	documentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqengine",
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Total number of documents processed",
		},
		[]string{"path"},
	)

	// useCasesExtracted counts extracted use cases.
	// Labels: method (single_stage, batch, fallback)
	useCasesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reqengine",
			Subsystem: "pipeline",
			Name:      "use_cases_extracted_total",
			Help:      "Total number of use cases extracted",
		},
		[]string{"method"},
	)

	duplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reqengine",
			Subsystem: "pipeline",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of extracted use cases skipped as duplicates",
		},
	)

	chunksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reqengine",
			Subsystem: "pipeline",
			Name:      "chunks_processed_total",
			Help:      "Total number of document chunks sent to extraction",
		},
	)

	documentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reqengine",
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Duration of document processing in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"path"},
	)
)
