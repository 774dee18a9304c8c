package embcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/db"
	"github.com/coursemind/coursemind/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	vec    []float32
	err    error
	calls  int
	tokens int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: m.tokens, PromptTokens: m.tokens}, nil
}

type mockKV struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestEmbedCachesResult(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{0.1, -0.5, 2}, tokens: 7}
	kv := newMockKV()
	c := New(inner, kv, 0, nil, zap.NewNop())
	ctx := context.Background()

	first, err := c.Embed(ctx, "machine learning")
	if err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	if first.TotalTokens != 7 {
		t.Errorf("first call tokens = %d, want 7", first.TotalTokens)
	}

	second, err := c.Embed(ctx, "machine learning")
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
	// Cache hits consume no provider tokens.
	if second.TotalTokens != 0 {
		t.Errorf("cached call tokens = %d, want 0", second.TotalTokens)
	}
	if len(second.Embedding) != 3 {
		t.Fatalf("cached vector length = %d", len(second.Embedding))
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Errorf("vector[%d] = %f, want %f", i, second.Embedding[i], first.Embedding[i])
		}
	}
}

func TestEmbedDistinctTextsDistinctKeys(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1}}
	kv := newMockKV()
	c := New(inner, kv, 0, nil, zap.NewNop())
	ctx := context.Background()

	if _, err := c.Embed(ctx, "alpha"); err != nil {
		t.Fatalf("Embed alpha: %v", err)
	}
	if _, err := c.Embed(ctx, "beta"); err != nil {
		t.Fatalf("Embed beta: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
	if len(kv.data) != 2 {
		t.Errorf("cache holds %d entries, want 2", len(kv.data))
	}
}

func TestEmbedStoresWithConfiguredTTL(t *testing.T) {
	kv := newMockKV()
	c := New(&mockEmbedder{vec: []float32{1}}, kv, 5*time.Minute, nil, zap.NewNop())

	if _, err := c.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(kv.ttls) != 1 {
		t.Fatalf("cache holds %d entries, want 1", len(kv.ttls))
	}
	for key, ttl := range kv.ttls {
		if ttl != 5*time.Minute {
			t.Errorf("ttl for %s = %v, want 5m", key, ttl)
		}
	}

	// A non-positive TTL falls back to the default rather than caching forever.
	kv2 := newMockKV()
	c2 := New(&mockEmbedder{vec: []float32{1}}, kv2, 0, nil, zap.NewNop())
	if _, err := c2.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for key, ttl := range kv2.ttls {
		if ttl != DefaultTTL {
			t.Errorf("ttl for %s = %v, want DefaultTTL", key, ttl)
		}
	}
}

func TestEmbedToleratesStoreFailures(t *testing.T) {
	inner := &mockEmbedder{vec: []float32{1, 2}}
	kv := newMockKV()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	c := New(inner, kv, 0, nil, zap.NewNop())

	result, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed with broken store: %v", err)
	}
	if len(result.Embedding) != 2 {
		t.Errorf("vector length = %d, want 2", len(result.Embedding))
	}
}

func TestEmbedPropagatesProviderError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrRateLimited}
	c := New(inner, newMockKV(), 0, nil, zap.NewNop())

	_, err := c.Embed(context.Background(), "text")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -3.25, 1e-7}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vec[%d] = %f, want %f", i, got[i], vec[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}
}
