package coursemind

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "memory" or "redis"
	addrs    []string
	password string

	embedder  Embedder
	completer Completer

	maxChunkWords int
	overlapWords  int
	workers       int
	embedRetries  int
	jobTTL        time.Duration
	embedCacheTTL time.Duration

	defaultTopK       int
	contextWordBudget int
	vectorWeight      float64
	keywordWeight     float64
	phraseWeight      float64

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis backs jobs and the embedding cache with a Redis instance so
// they survive the process and are shared across clients.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets the text embedding provider. Required: ingestion and
// querying fail without one.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithCompleter sets the answer synthesis provider. Without one, queries
// still retrieve but return degraded excerpt-only answers.
func WithCompleter(cp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completer = cp
	})
}

// WithChunking sets the chunk size and overlap in words.
// Defaults: 1000 and 200.
func WithChunking(maxWords, overlapWords int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxChunkWords = maxWords
		c.overlapWords = overlapWords
	})
}

// WithWorkers sets the ingestion worker pool size. Default: 4.
func WithWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.workers = n
	})
}

// WithEmbedRetries sets the retry budget for transient embedding failures.
// Default: 3.
func WithEmbedRetries(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedRetries = n
	})
}

// WithJobTTL sets how long terminal jobs stay pollable. Default: 1 hour.
func WithJobTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.jobTTL = ttl
	})
}

// WithEmbedCacheTTL sets how long cached embedding vectors stay servable.
// Default: 24 hours.
func WithEmbedCacheTTL(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedCacheTTL = ttl
	})
}

// WithTopK sets the default number of chunks retrieved per query.
// Default: 5.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultTopK = k
	})
}

// WithContextBudget caps the total words of retrieved context passed to
// synthesis. Default: 3000.
func WithContextBudget(words int) Option {
	return optionFunc(func(c *clientConfig) {
		c.contextWordBudget = words
	})
}

// WithHybridWeights sets the vector, keyword, and phrase weights for
// hybrid ranking. Defaults: 0.6, 0.3, 0.1.
func WithHybridWeights(vector, keyword, phrase float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorWeight = vector
		c.keywordWeight = keyword
		c.phraseWeight = phrase
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
