package domain

import (
	"errors"
	"fmt"
)

// KeyPrefix namespaces every key this service writes to the KV store.
const KeyPrefix = "coursemind:"

var (
	// ErrUnsupportedFormat signals an upload in a format no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrParseFailure signals corrupt bytes in a recognized format.
	ErrParseFailure = errors.New("document parse failure")
	// ErrChunking signals a chunker logic failure (a bug, not bad input).
	ErrChunking = errors.New("chunking failed")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrCompletionProvider signals a completion provider failure.
	ErrCompletionProvider = errors.New("completion provider error")
	// ErrRateLimited signals a provider rate limit hit (transient).
	ErrRateLimited = errors.New("rate limited")
	// ErrProviderUnavailable signals a transient provider outage (5xx, network).
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrIndexCorruption signals structural inconsistency in the vector index.
	ErrIndexCorruption = errors.New("index corruption")
	// ErrRetrievalTimeout signals that embedding or search exceeded its deadline.
	ErrRetrievalTimeout = errors.New("retrieval timeout")
	// ErrSynthesis signals that answer synthesis failed after retries.
	ErrSynthesis = errors.New("answer synthesis failed")
	// ErrJobNotFound signals a missing ingestion job.
	ErrJobNotFound = errors.New("ingestion job not found")
	// ErrJobCancelled signals an ingestion job cancelled by a document delete.
	ErrJobCancelled = errors.New("ingestion cancelled")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
)

// CorruptionError identifies the document whose index entries failed a
// structural check, so recovery can rebuild just that document.
type CorruptionError struct {
	DocumentID string
	Detail     string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%v: document %s: %s", ErrIndexCorruption, e.DocumentID, e.Detail)
}

func (e *CorruptionError) Unwrap() error { return ErrIndexCorruption }

// ExtractionError wraps an extraction failure with its cause
// (ErrUnsupportedFormat vs ErrParseFailure) and the offending format.
type ExtractionError struct {
	Format Format
	Cause  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NewExtractionError creates an extraction error for the given format.
func NewExtractionError(format Format, cause error) error {
	return &ExtractionError{Format: format, Cause: cause}
}

// IsTransient reports whether an error is worth retrying (rate limits,
// provider hiccups). Permanent errors fail the operation immediately.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}
