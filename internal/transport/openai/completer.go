package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/metrics"
)

// Completer is an answer synthesis provider using the chat completion API.
type Completer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

// CompleterConfig holds completion provider settings.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      *zap.Logger
}

// NewCompleter creates an OpenAI-compatible completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	return &Completer{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}
}

// Complete implements domain.Completer: one user message in, trimmed free
// text out.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", classifyAPIError("completion", err, domain.ErrCompletionProvider)
	}

	if len(resp.Choices) == 0 {
		metrics.CompletionRequestsTotal.WithLabelValues(c.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrCompletionProvider)
	}

	metrics.CompletionRequestsTotal.WithLabelValues(c.model, "success").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
