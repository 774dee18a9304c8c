package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding provider Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coursemind",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	CompletionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coursemind",
			Name:      "completion_requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"model", "status"},
	)
)

var providerMetricsRegistered bool

// RegisterProviderMetrics registers embedding and completion metrics.
// Must be called once from main.
func RegisterProviderMetrics() {
	if providerMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(CompletionRequestsTotal)
	providerMetricsRegistered = true
}
