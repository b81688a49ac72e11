package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IndexerMetrics tracks keyword index updates driven by index events and rebuilds.
type IndexerMetrics struct {
	service string

	indexTotal    *prometheus.CounterVec
	indexDocs     *prometheus.CounterVec
	indexDuration *prometheus.HistogramVec
}

func NewIndexerMetrics(service string, registerer prometheus.Registerer) *IndexerMetrics {
	indexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batches_total",
			Help:      "Keyword index batches by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	indexDocs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "documents_total",
			Help:      "Documents written to the keyword index.",
		},
		[]string{"service", "kind"},
	)
	indexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "batch_duration_seconds",
			Help:      "Keyword index batch duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "kind", "status"},
	)

	registerer.MustRegister(indexTotal, indexDocs, indexDuration)

	return &IndexerMetrics{
		service:       service,
		indexTotal:    indexTotal,
		indexDocs:     indexDocs,
		indexDuration: indexDuration,
	}
}

func (m *IndexerMetrics) ObserveIndexed(kind string, docs int, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexTotal.WithLabelValues(m.service, kind, status).Inc()
	m.indexDuration.WithLabelValues(m.service, kind, status).Observe(duration.Seconds())
	if err == nil && docs > 0 {
		m.indexDocs.WithLabelValues(m.service, kind).Add(float64(docs))
	}
}
