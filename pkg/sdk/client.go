package coursemind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/chapter"
	"github.com/coursemind/coursemind/internal/chunker"
	"github.com/coursemind/coursemind/internal/db"
	dbMemory "github.com/coursemind/coursemind/internal/db/memory"
	dbRedis "github.com/coursemind/coursemind/internal/db/redis"
	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/extract"
	memindex "github.com/coursemind/coursemind/internal/index/memory"
	"github.com/coursemind/coursemind/internal/repository/embcache"
	"github.com/coursemind/coursemind/internal/repository/jobs"
	ingestuc "github.com/coursemind/coursemind/internal/usecase/ingest"
	retrievaluc "github.com/coursemind/coursemind/internal/usecase/retrieval"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
)

// Client is the coursemind SDK entry point.
type Client struct {
	store        db.Store
	index        *memindex.Index
	ingestSvc    *ingestuc.Service
	retrievalSvc *retrievaluc.Service
	stopWorkers  context.CancelFunc
	obs          *observer
}

// New creates a coursemind Client, connects to the backing store, and
// starts the ingestion workers. The provided context is used for the
// initial readiness check only.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:        "memory",
		maxChunkWords: 1000,
		overlapWords:  200,
		workers:       4,
		embedRetries:  3,
		jobTTL:        time.Hour,
		embedCacheTTL: embcache.DefaultTTL,
		vectorWeight:  0.6,
		keywordWeight: 0.3,
		phraseWeight:  0.1,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("coursemind: store not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return wireClient(store, cfg, obs)
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return dbMemory.NewStore(), nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("coursemind: create redis store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("coursemind: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	slicer, err := chunker.New(cfg.maxChunkWords, cfg.overlapWords)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("coursemind: invalid chunking: %w", err)
	}

	// Internal services log through the SDK observer instead.
	zlog := zap.NewNop()

	var domEmb domain.Embedder = noopEmbedder{}
	if cfg.embedder != nil {
		domEmb = embcache.New(&embedderAdapter{inner: cfg.embedder}, store, cfg.embedCacheTTL, nil, zlog)
	}

	var completer retrievaluc.Completer = noopCompleter{}
	if cfg.completer != nil {
		completer = &completerAdapter{inner: cfg.completer}
	}

	idx := memindex.New()

	var jobStore jobs.Store
	switch cfg.driver {
	case "redis":
		jobStore = jobs.NewRedisStore(store, cfg.jobTTL)
	default:
		jobStore = jobs.NewMemoryStore(cfg.jobTTL)
	}

	ingestSvc := ingestuc.New(
		jobStore, idx, domEmb,
		extract.New(extract.ExecRunner{}), chapter.New(), slicer,
		cfg.workers, zlog,
	).WithEmbedRetries(cfg.embedRetries, 500*time.Millisecond)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	ingestSvc.Start(workerCtx)

	retrievalSvc := retrievaluc.New(idx, domEmb, completer, retrievaluc.Options{
		DefaultTopK:       cfg.defaultTopK,
		ContextWordBudget: cfg.contextWordBudget,
		VectorWeight:      cfg.vectorWeight,
		KeywordWeight:     cfg.keywordWeight,
		PhraseWeight:      cfg.phraseWeight,
	}, zlog).WithReindexer(ingestSvc)

	return &Client{
		store:        store,
		index:        idx,
		ingestSvc:    ingestSvc,
		retrievalSvc: retrievalSvc,
		stopWorkers:  stopWorkers,
		obs:          obs,
	}, nil
}

// Close drains in-flight ingestion jobs and releases all resources.
func (c *Client) Close() {
	if c.stopWorkers != nil {
		c.stopWorkers()
	}
	if c.ingestSvc != nil {
		c.ingestSvc.Stop()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks backing store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// UploadDocument accepts a document for a course and returns the created
// ingestion job. The pipeline runs in the background; poll with Ingestion
// or block with WaitForIngestion.
func (c *Client) UploadDocument(ctx context.Context, courseID int64, filename string, data []byte) (job IngestionJob, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upload_document", start, err) }()

	format, ok := domain.FormatFromFilename(filename)
	if !ok {
		return IngestionJob{}, fmt.Errorf("%q: %w", filename, domain.ErrUnsupportedFormat)
	}

	doc := domain.DocumentRef{
		ID:       uuid.NewString(),
		CourseID: courseID,
		Name:     filename,
		Format:   format,
		Size:     int64(len(data)),
	}

	dj, err := c.ingestSvc.Enqueue(ctx, doc, data)
	if err != nil {
		return IngestionJob{}, err
	}
	return jobFromDomain(dj), nil
}

// Ingestion returns a job snapshot by id.
func (c *Client) Ingestion(ctx context.Context, jobID string) (job IngestionJob, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ingestion", start, err) }()

	dj, err := c.ingestSvc.Job(ctx, jobID)
	if err != nil {
		return IngestionJob{}, err
	}
	return jobFromDomain(dj), nil
}

// WaitForIngestion polls a job until it reaches a terminal status or ctx
// expires. A non-positive poll interval uses the default.
func (c *Client) WaitForIngestion(ctx context.Context, jobID string, poll time.Duration) (IngestionJob, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	for {
		job, err := c.Ingestion(ctx, jobID)
		if err != nil {
			return IngestionJob{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for ingestion %s: %w", jobID, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// Query answers a question over the indexed course content.
func (c *Client) Query(ctx context.Context, req QueryRequest) (answer Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	a, err := c.retrievalSvc.Answer(ctx, retrievaluc.Params{
		Query:         req.Query,
		CourseID:      req.CourseID,
		Chapter:       req.Chapter,
		TopK:          req.TopK,
		UseHybrid:     req.Hybrid,
		WithCitations: req.WithCitations,
	})
	if err != nil {
		return Answer{}, err
	}
	return answerFromDomain(a), nil
}

// DeleteDocument cancels any in-flight ingestion for the document and
// removes its index entries.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_document", start, err) }()

	return c.ingestSvc.DeleteDocument(ctx, documentID)
}

// ReindexDocument re-embeds a document's stored chunks and rebuilds its
// index entries. Recovery path for index corruption.
func (c *Client) ReindexDocument(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("reindex_document", start, err) }()

	return c.ingestSvc.ReindexDocument(ctx, documentID)
}

// Stats reports vector index counters.
func (c *Client) Stats(ctx context.Context) (stats IndexStats, err error) {
	start := time.Now()
	defer func() { c.obs.observe("stats", start, err) }()

	s, err := c.index.Stats(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{Documents: s.Documents, Entries: s.Entries, Dimension: s.Dimension}, nil
}

// embedderAdapter wraps the public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// completerAdapter wraps the public Completer for the retrieval service.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	return a.inner.Complete(ctx, prompt)
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"coursemind: embedder not configured (use WithEmbedder)",
	)
}

// noopCompleter fails synthesis, which degrades answers to raw excerpts.
type noopCompleter struct{}

func (noopCompleter) Complete(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("%w: completer not configured (use WithCompleter)", domain.ErrCompletionProvider)
}
