package coursemind

import "github.com/coursemind/coursemind/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrUnsupportedFormat   = domain.ErrUnsupportedFormat
	ErrParseFailure        = domain.ErrParseFailure
	ErrRateLimited         = domain.ErrRateLimited
	ErrProviderUnavailable = domain.ErrProviderUnavailable
	ErrEmbeddingProvider   = domain.ErrEmbeddingProvider
	ErrCompletionProvider  = domain.ErrCompletionProvider
	ErrRetrievalTimeout    = domain.ErrRetrievalTimeout
	ErrIndexCorruption     = domain.ErrIndexCorruption
	ErrSynthesis           = domain.ErrSynthesis
	ErrJobNotFound         = domain.ErrJobNotFound
	ErrJobCancelled        = domain.ErrJobCancelled
	ErrDocumentNotFound    = domain.ErrDocumentNotFound
)
