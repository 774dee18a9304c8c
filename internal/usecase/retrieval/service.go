// Package retrieval answers questions over indexed course content: embed
// the query, rank chunks (optionally hybrid), fit them to a context budget,
// and synthesize an answer with the completion provider.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/index"
)

// noContentAnswer is returned verbatim when ranking yields nothing.
// The completion provider is never called in that case.
const noContentAnswer = "No relevant course content was found for this query."

// Params are the per-query knobs.
type Params struct {
	Query         string
	CourseID      *int64
	Chapter       string
	TopK          int
	UseHybrid     bool
	WithCitations bool
}

// Options are the service-wide retrieval settings.
type Options struct {
	DefaultTopK       int
	ContextWordBudget int
	VectorWeight      float64
	KeywordWeight     float64
	PhraseWeight      float64
	Timeout           time.Duration
	SynthesisRetries  int
	RetryBackoff      time.Duration
}

// Service orchestrates query-time retrieval and answer synthesis.
type Service struct {
	searcher  Searcher
	embedder  Embedder
	completer Completer
	reindexer Reindexer
	opts      Options
	logger    *zap.Logger
}

// New creates the retrieval service.
func New(searcher Searcher, embedder Embedder, completer Completer, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.ContextWordBudget <= 0 {
		opts.ContextWordBudget = 3000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.SynthesisRetries <= 0 {
		opts.SynthesisRetries = 2
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 300 * time.Millisecond
	}
	return &Service{
		searcher:  searcher,
		embedder:  embedder,
		completer: completer,
		opts:      opts,
		logger:    logger,
	}
}

// WithReindexer sets the recovery hook invoked when a search reports a
// corrupt document: the document is rebuilt and the search retried once.
func (s *Service) WithReindexer(r Reindexer) *Service {
	s.reindexer = r
	return s
}

// Answer runs the full retrieval flow for one query.
//
// Retrieval failures (embedding, search, deadline before any candidates) are
// returned as errors. Once candidates exist, synthesis failures degrade the
// answer to raw excerpts instead of failing the request.
func (s *Service) Answer(ctx context.Context, p Params) (domain.Answer, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return domain.Answer{}, errors.New("empty query")
	}
	topK := p.TopK
	if topK <= 0 {
		topK = s.opts.DefaultTopK
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	filter := index.Filter{CourseID: p.CourseID, Chapter: p.Chapter}

	ranked, err := s.rank(ctx, query, topK, filter, p.UseHybrid)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Answer{}, fmt.Errorf("retrieval deadline exceeded: %w", domain.ErrRetrievalTimeout)
		}
		return domain.Answer{}, err
	}

	if len(ranked) == 0 {
		s.logger.Info("No candidates for query", zap.String("query", query))
		return domain.Answer{Query: query, Text: noContentAnswer}, nil
	}

	selected := fitToBudget(ranked, s.opts.ContextWordBudget)

	answer := domain.Answer{
		Query:   query,
		Sources: selected,
	}
	if p.WithCitations {
		answer.Citations = collectCitations(selected)
	}

	reply, err := s.synthesize(ctx, query, selected, p.WithCitations)
	if err != nil {
		s.logger.Warn("Answer synthesis failed, degrading to excerpts",
			zap.String("query", query), zap.Error(err))
		answer.Text = degradedAnswer(selected)
		answer.Degraded = true
		return answer, nil
	}
	answer.Text, answer.FollowUps = splitFollowUps(reply)
	return answer, nil
}

// rank retrieves and scores candidates. Hybrid mode overfetches from both
// the vector and keyword paths, then merges with the configured weights.
func (s *Service) rank(ctx context.Context, query string, topK int, f index.Filter, hybrid bool) ([]domain.RetrievalResult, error) {
	embedded, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if !hybrid {
		results, err := s.vectorSearch(ctx, embedded.Embedding, topK, f)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		return results, nil
	}

	fetch := topK * 2
	vector, err := s.vectorSearch(ctx, embedded.Embedding, fetch, f)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var keyword []domain.RetrievalResult
	if terms := extractKeywords(query); len(terms) > 0 {
		keyword, err = s.searcher.SearchKeyword(ctx, terms, fetch, f)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
	}

	return s.merge(query, vector, keyword, topK), nil
}

// vectorSearch runs one vector search. When the index reports a corrupt
// document and a reindexer is wired, the document is rebuilt from its stored
// chunks and the search retried once instead of failing the query.
func (s *Service) vectorSearch(ctx context.Context, vec []float32, topK int, f index.Filter) ([]domain.RetrievalResult, error) {
	results, err := s.searcher.Search(ctx, vec, topK, f)
	if err == nil || s.reindexer == nil {
		return results, err
	}
	var corrupt *domain.CorruptionError
	if !errors.As(err, &corrupt) {
		return nil, err
	}

	s.logger.Warn("Rebuilding corrupt document entries",
		zap.String("document_id", corrupt.DocumentID), zap.Error(err))
	if rerr := s.reindexer.ReindexDocument(ctx, corrupt.DocumentID); rerr != nil {
		return nil, fmt.Errorf("rebuild document %s: %v: %w", corrupt.DocumentID, rerr, err)
	}
	return s.searcher.Search(ctx, vec, topK, f)
}

// merge combines vector and keyword scores per chunk:
//
//	combined = vw*vector + kw*keyword + pw*phrase
//
// where phrase is 1 when the whole query appears verbatim in the chunk.
// A chunk absent from one path contributes 0 for that component.
func (s *Service) merge(query string, vector, keyword []domain.RetrievalResult, topK int) []domain.RetrievalResult {
	type scored struct {
		chunk   domain.Chunk
		vec, kw float64
	}
	byID := make(map[string]*scored, len(vector)+len(keyword))
	for _, r := range vector {
		byID[r.Chunk.ID] = &scored{chunk: r.Chunk, vec: r.Score}
	}
	for _, r := range keyword {
		if sc, ok := byID[r.Chunk.ID]; ok {
			sc.kw = r.Score
		} else {
			byID[r.Chunk.ID] = &scored{chunk: r.Chunk, kw: r.Score}
		}
	}

	loweredQuery := strings.ToLower(query)
	merged := make([]domain.RetrievalResult, 0, len(byID))
	for _, sc := range byID {
		score := s.opts.VectorWeight*sc.vec + s.opts.KeywordWeight*sc.kw
		if strings.Contains(strings.ToLower(sc.chunk.Text), loweredQuery) {
			score += s.opts.PhraseWeight
		}
		merged = append(merged, domain.RetrievalResult{Chunk: sc.chunk, Score: score})
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// fitToBudget keeps ranked chunks, in order, while they fit the context word
// budget. The top chunk is always kept even if it alone exceeds the budget.
func fitToBudget(ranked []domain.RetrievalResult, budget int) []domain.RetrievalResult {
	var selected []domain.RetrievalResult
	used := 0
	for _, r := range ranked {
		if len(selected) > 0 && used+r.Chunk.WordCount > budget {
			continue
		}
		selected = append(selected, r)
		used += r.Chunk.WordCount
	}
	return selected
}

// synthesize calls the completion provider, retrying transient failures.
func (s *Service) synthesize(ctx context.Context, query string, chunks []domain.RetrievalResult, withCitations bool) (string, error) {
	prompt := buildPrompt(query, chunks, withCitations)

	var lastErr error
	delay := s.opts.RetryBackoff
	for attempt := 0; attempt < s.opts.SynthesisRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("synthesis deadline exceeded: %w", domain.ErrRetrievalTimeout)
			case <-time.After(delay):
			}
			delay *= 2
		}

		text, err := s.completer.Complete(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", domain.ErrSynthesis, lastErr)
}

// collectCitations dedupes by chapter title, ordered by first use.
func collectCitations(chunks []domain.RetrievalResult) []domain.Citation {
	seen := make(map[string]struct{}, len(chunks))
	var citations []domain.Citation
	for _, r := range chunks {
		if _, ok := seen[r.Chunk.ChapterTitle]; ok {
			continue
		}
		seen[r.Chunk.ChapterTitle] = struct{}{}
		citations = append(citations, domain.Citation{
			Chapter:    r.Chunk.ChapterTitle,
			DocumentID: r.Chunk.DocumentID,
			Page:       r.Chunk.Page,
		})
	}
	return citations
}

// degradedAnswer assembles raw excerpts when synthesis is unavailable.
func degradedAnswer(chunks []domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Answer synthesis is currently unavailable. Most relevant excerpts:\n")
	for i, r := range chunks {
		fmt.Fprintf(&b, "\n[%d] Chapter: %s\n%s\n", i+1, r.Chunk.ChapterTitle, excerpt(r.Chunk.Text, 300))
	}
	return b.String()
}

// excerpt truncates on a rune boundary so multi-byte text never tears.
func excerpt(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
