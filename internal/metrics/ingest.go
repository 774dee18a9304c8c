package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline Prometheus metrics.
var (
	IngestJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "ingest_jobs_total",
			Help:      "Ingestion jobs by terminal status",
		},
		[]string{"status"}, // "success" / "failure" / "cancelled"
	)

	IngestChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "ingest_chunks_indexed_total",
			Help:      "Chunks written to the embedding index",
		},
	)

	IngestStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursemind",
			Name:      "ingest_stage_duration_seconds",
			Help:      "Duration of each ingestion pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"stage"}, // extract / detect / chunk / index
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers ingestion metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestJobsTotal)
	prometheus.MustRegister(IngestChunksIndexed)
	prometheus.MustRegister(IngestStageDuration)
	ingestMetricsRegistered = true
}
