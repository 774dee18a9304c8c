// Package embcache decorates an embedder with a KV-backed vector cache.
// Re-ingesting an unchanged document embeds nothing. Entries expire after a
// configurable TTL, so a model or dimension change ages out of the cache
// instead of serving stale vectors forever.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/db"
	"github.com/coursemind/coursemind/internal/domain"
)

const cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// DefaultTTL bounds how long a cached vector stays servable.
const DefaultTTL = 24 * time.Hour

// store is the consumer interface over the KV store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEmbedder caches embeddings in a key-value store.
type CachedEmbedder struct {
	inner      domain.Embedder
	kv         store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. A non-positive ttl falls back to
// DefaultTTL. cacheTotal is a counter vec with label "result" ("hit"/"miss");
// nil disables cache metrics.
func New(
	inner domain.Embedder,
	kv store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedEmbedder{
		inner:      inner,
		kv:         kv,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder. Store
// failures are tolerated: the cache degrades to a pass-through.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if vec := c.lookup(ctx, key); vec != nil {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if err := c.kv.SetWithTTL(ctx, key, encodeVector(result.Embedding), c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) []float32 {
	data, err := c.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil
	case err != nil:
		c.logger.Warn("Failed to read embedding cache", zap.String("key", key), zap.Error(err))
		return nil
	case len(data) == 0:
		return nil
	}

	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("Dropping malformed cache entry", zap.String("key", key), zap.Error(err))
		return nil
	}
	return vec
}

func (c *CachedEmbedder) count(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

// encodeVector packs float32 components little-endian, 4 bytes each.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
