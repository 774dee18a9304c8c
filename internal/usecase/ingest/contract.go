package ingest

import (
	"context"

	"github.com/coursemind/coursemind/internal/domain"
)

// Extractor converts uploaded bytes into plain text with page boundaries.
type Extractor interface {
	Extract(ctx context.Context, data []byte, format domain.Format) (domain.ExtractedText, error)
}

// Detector segments extracted text into ordered chapter spans.
type Detector interface {
	Detect(text domain.ExtractedText, fallbackTitle string) []domain.Chapter
}

// Slicer splits one chapter into overlapping chunks.
type Slicer interface {
	Chunk(doc domain.DocumentRef, text domain.ExtractedText, ch domain.Chapter) []domain.Chunk
}
