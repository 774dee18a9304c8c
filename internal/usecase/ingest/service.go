// Package ingest runs the upload pipeline: extract -> detect chapters ->
// chunk -> embed + index, with job progress tracking and cancellation.
//
// The accepting request returns immediately with a job id; a bounded worker
// pool processes jobs in the background. Stages within one job run
// sequentially, jobs for different documents run concurrently. All of a
// document's chunks are embedded before a single atomic index insert, so a
// failed or cancelled job leaves zero index entries behind.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/index"
	"github.com/coursemind/coursemind/internal/metrics"
	"github.com/coursemind/coursemind/internal/repository/jobs"
)

const taskQueueSize = 64

type task struct {
	jobID string
	doc   domain.DocumentRef
	data  []byte

	// ctx is cancelled by DeleteDocument. Created at enqueue time so a
	// delete reaches jobs still sitting in the queue, not just claimed ones.
	ctx context.Context
}

// Service owns the ingestion pipeline and its worker pool.
type Service struct {
	jobs      jobs.Store
	index     index.Index
	embedder  domain.Embedder
	extractor Extractor
	detector  Detector
	slicer    Slicer
	logger    *zap.Logger

	workers      int
	embedRetries int
	backoff      time.Duration

	tasks chan task
	wg    sync.WaitGroup

	// Per-document serialization of cancel+delete vs the final index insert,
	// so a delete-in-flight never races an insert for the same document.
	// Cancels are keyed document -> job: a delete cancels every pending job
	// for the document, queued or claimed.
	mu      sync.Mutex
	cancels map[string]map[string]context.CancelFunc
	docMu   map[string]*sync.Mutex
}

// New creates the ingestion service.
func New(
	store jobs.Store,
	idx index.Index,
	embedder domain.Embedder,
	extractor Extractor,
	detector Detector,
	slicer Slicer,
	workers int,
	logger *zap.Logger,
) *Service {
	if workers <= 0 {
		workers = 1
	}
	return &Service{
		jobs:         store,
		index:        idx,
		embedder:     embedder,
		extractor:    extractor,
		detector:     detector,
		slicer:       slicer,
		logger:       logger,
		workers:      workers,
		embedRetries: 3,
		backoff:      500 * time.Millisecond,
		tasks:        make(chan task, taskQueueSize),
		cancels:      make(map[string]map[string]context.CancelFunc),
		docMu:        make(map[string]*sync.Mutex),
	}
}

// WithEmbedRetries overrides the retry budget for transient embedding failures.
func (s *Service) WithEmbedRetries(retries int, backoff time.Duration) *Service {
	if retries > 0 {
		s.embedRetries = retries
	}
	if backoff > 0 {
		s.backoff = backoff
	}
	return s
}

// Start launches the worker pool. Workers exit when ctx is done and the
// task queue is drained via Stop.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-s.tasks:
					if !ok {
						return
					}
					s.run(ctx, t)
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (s *Service) Stop() {
	close(s.tasks)
	s.wg.Wait()
}

// Enqueue accepts an upload, creates a QUEUED job, and hands the work to
// the pool. Non-blocking from the caller's perspective: the pipeline runs
// in the background and the returned job id is immediately pollable.
func (s *Service) Enqueue(ctx context.Context, doc domain.DocumentRef, data []byte) (domain.IngestionJob, error) {
	job := domain.IngestionJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		CourseID:   doc.CourseID,
		Status:     domain.JobQueued,
		Messages:   []string{},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		return domain.IngestionJob{}, fmt.Errorf("save job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.registerCancel(doc.ID, job.ID, cancel)

	select {
	case s.tasks <- task{jobID: job.ID, doc: doc, data: data, ctx: jobCtx}:
		return job, nil
	case <-ctx.Done():
		s.unregisterCancel(doc.ID, job.ID)
		return domain.IngestionJob{}, fmt.Errorf("enqueue: %w", ctx.Err())
	}
}

// Job returns a job snapshot by id.
func (s *Service) Job(ctx context.Context, id string) (domain.IngestionJob, error) {
	return s.jobs.Get(ctx, id)
}

// DeleteDocument cancels every pending ingestion for the document, queued
// or in flight, and removes its index entries as one unit.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	for _, cancel := range s.cancels[documentID] {
		cancel()
	}
	s.mu.Unlock()

	lock := s.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document %s from index: %w", documentID, err)
	}
	return nil
}

// ReindexDocument rebuilds one document's index entries from its stored
// chunk texts. Recovery path for index corruption.
func (s *Service) ReindexDocument(ctx context.Context, documentID string) error {
	entries, err := s.index.DocumentEntries(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load entries for %s: %w", documentID, err)
	}

	for i := range entries {
		result, err := s.embedWithRetry(ctx, entries[i].Chunk.Text)
		if err != nil {
			return fmt.Errorf("re-embed chunk %s: %w", entries[i].Chunk.ID, err)
		}
		entries[i].Vector = result.Embedding
	}

	if err := s.index.Rebuild(ctx, documentID, entries); err != nil {
		return fmt.Errorf("rebuild %s: %w", documentID, err)
	}
	return nil
}

// run executes the pipeline for one claimed job.
func (s *Service) run(ctx context.Context, t task) {
	logger := s.logger.With(
		zap.String("job_id", t.jobID),
		zap.String("document_id", t.doc.ID),
		zap.Int64("course_id", t.doc.CourseID),
	)

	if _, err := s.jobs.Claim(ctx, t.jobID); err != nil {
		if errors.Is(err, jobs.ErrAlreadyClaimed) {
			logger.Warn("Job already claimed, skipping")
			return
		}
		logger.Error("Failed to claim job", zap.Error(err))
		return
	}

	// The task context was registered for cancellation at enqueue time.
	// Pool shutdown cancels the job too.
	jobCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	defer s.unregisterCancel(t.doc.ID, t.jobID)
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := s.pipeline(jobCtx, t, logger); err != nil {
		status := "failure"
		if errors.Is(err, domain.ErrJobCancelled) {
			status = "cancelled"
		}
		metrics.IngestJobsTotal.WithLabelValues(status).Inc()
		s.fail(t.jobID, err)
		logger.Warn("Ingestion failed", zap.Error(err))
		return
	}

	metrics.IngestJobsTotal.WithLabelValues("success").Inc()
	logger.Info("Ingestion complete")
}

// pipeline runs the four stages, appending one progress message per stage
// and checking for cancellation between stages.
func (s *Service) pipeline(ctx context.Context, t task, logger *zap.Logger) error {
	// The document may have been deleted while the job sat in the queue.
	if err := cancelled(ctx); err != nil {
		return err
	}

	// Stage 1: extract.
	s.progress(t.jobID, "Extracting text")
	stageStart := time.Now()
	text, err := s.extractor.Extract(ctx, t.data, t.doc.Format)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	metrics.IngestStageDuration.WithLabelValues("extract").Observe(time.Since(stageStart).Seconds())

	if err := cancelled(ctx); err != nil {
		return err
	}

	// Stage 2: detect chapters. Detection never fails: no boundary means
	// one default chapter.
	s.progress(t.jobID, "Detecting chapters")
	stageStart = time.Now()
	chapters := s.detector.Detect(text, t.doc.Name)
	metrics.IngestStageDuration.WithLabelValues("detect").Observe(time.Since(stageStart).Seconds())
	logger.Debug("Chapters detected", zap.Int("count", len(chapters)))

	if err := cancelled(ctx); err != nil {
		return err
	}

	// Stage 3: chunk.
	s.progress(t.jobID, "Chunking chapter content")
	stageStart = time.Now()
	var chunks []domain.Chunk
	for _, ch := range chapters {
		chunks = append(chunks, s.slicer.Chunk(t.doc, text, ch)...)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("%w: document produced no chunks", domain.ErrChunking)
	}
	metrics.IngestStageDuration.WithLabelValues("chunk").Observe(time.Since(stageStart).Seconds())
	logger.Debug("Chunks created", zap.Int("count", len(chunks)))

	if err := cancelled(ctx); err != nil {
		return err
	}

	// Stage 4: embed everything first, then one atomic insert. A failure or
	// cancellation anywhere in this stage leaves no index entries.
	s.progress(t.jobID, "Embedding chunks and storing in vector index")
	stageStart = time.Now()
	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		result, err := s.embedWithRetry(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", c.ID, err)
		}
		entries[i] = index.Entry{Chunk: c, Vector: result.Embedding}
	}

	lock := s.docLock(t.doc.ID)
	lock.Lock()
	if err := cancelled(ctx); err != nil {
		lock.Unlock()
		return err
	}
	err = s.index.InsertDocument(ctx, t.doc.ID, entries)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("index insert: %w", err)
	}
	metrics.IngestStageDuration.WithLabelValues("index").Observe(time.Since(stageStart).Seconds())
	metrics.IngestChunksIndexed.Add(float64(len(entries)))

	stats := domain.Statistics(chunks)
	s.complete(t.jobID, domain.IngestionResult{
		ChunksCreated: len(chunks),
		Chapters:      stats.Chapters,
		Statistics:    stats,
	})
	return nil
}

// embedWithRetry retries transient provider failures with exponential
// backoff. Permanent failures and context cancellation return immediately.
func (s *Service) embedWithRetry(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var lastErr error
	delay := s.backoff
	for attempt := 0; attempt < s.embedRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.EmbeddingResult{}, fmt.Errorf("%w: %v", domain.ErrJobCancelled, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		result, err := s.embedder.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !domain.IsTransient(err) {
			break
		}
	}
	return domain.EmbeddingResult{}, lastErr
}

func cancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrJobCancelled, ctx.Err())
	}
	return nil
}

func (s *Service) progress(jobID, msg string) {
	_, err := s.jobs.Update(context.Background(), jobID, func(j *domain.IngestionJob) {
		j.Messages = append(j.Messages, msg)
	})
	if err != nil {
		s.logger.Warn("Failed to record progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) complete(jobID string, result domain.IngestionResult) {
	_, err := s.jobs.Update(context.Background(), jobID, func(j *domain.IngestionJob) {
		j.Status = domain.JobSuccess
		j.Result = &result
		j.Messages = append(j.Messages, "File processing complete")
	})
	if err != nil {
		s.logger.Warn("Failed to complete job", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) fail(jobID string, cause error) {
	_, err := s.jobs.Update(context.Background(), jobID, func(j *domain.IngestionJob) {
		j.Status = domain.JobFailure
		j.Error = cause.Error()
		j.Messages = append(j.Messages, "Processing failed: "+cause.Error())
	})
	if err != nil {
		s.logger.Warn("Failed to record job failure", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) registerCancel(documentID, jobID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancels[documentID] == nil {
		s.cancels[documentID] = make(map[string]context.CancelFunc)
	}
	s.cancels[documentID][jobID] = cancel
}

func (s *Service) unregisterCancel(documentID, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[documentID][jobID]; ok {
		cancel()
		delete(s.cancels[documentID], jobID)
		if len(s.cancels[documentID]) == 0 {
			delete(s.cancels, documentID)
		}
	}
}

func (s *Service) docLock(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.docMu[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.docMu[documentID] = lock
	}
	return lock
}
