package retrieval

import (
	"context"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/index"
)

// Searcher is the consumer interface over the embedding index (ISP).
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int, f index.Filter) ([]domain.RetrievalResult, error)
	SearchKeyword(ctx context.Context, terms []string, topK int, f index.Filter) ([]domain.RetrievalResult, error)
}

// Embedder embeds the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Completer synthesizes the final answer from the assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Reindexer rebuilds one document's index entries from its stored chunks.
// Recovery hook for corruption found during search.
type Reindexer interface {
	ReindexDocument(ctx context.Context, documentID string) error
}
