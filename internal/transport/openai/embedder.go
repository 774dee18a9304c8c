// Package openai adapts the OpenAI-compatible API (any base URL) to the
// domain embedding and completion contracts.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *zap.Logger
}

// Config holds the provider settings shared by embedder and completer.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Logger     *zap.Logger
}

func newClient(apiKey, baseURL string) *openai.Client {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg.APIKey, cfg.BaseURL),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     cfg.Logger,
	}
}

// Embed implements domain.Embedder. Returns the vector and usage with
// transport-level metrics.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		return domain.EmbeddingResult{}, classifyAPIError("embedding", err, domain.ErrEmbeddingProvider)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProvider)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(string(e.model)).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(string(e.model), "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// classifyAPIError maps a provider failure onto the transient/permanent
// taxonomy: 429 -> ErrRateLimited, 5xx and network failures ->
// ErrProviderUnavailable, everything else wraps the permanent sentinel.
func classifyAPIError(op string, err error, permanent error) error {
	status := 0

	var reqErr *openai.RequestError
	var apiErr *openai.APIError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	default:
		// No HTTP status at all: connection-level failure, assume transient.
		return fmt.Errorf("%s request failed: %v: %w", op, err, domain.ErrProviderUnavailable)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s API error %d: %w", op, status, domain.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s API error %d: %w", op, status, domain.ErrProviderUnavailable)
	default:
		return fmt.Errorf("%s API error %d: %v: %w", op, status, err, permanent)
	}
}
