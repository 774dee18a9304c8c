// Package extract converts uploaded bytes of a recognized format into plain
// text with page boundaries. Extraction is a pure transformation; all
// failures are reported as domain.ExtractionError with the detected cause.
package extract

import (
	"context"
	"strings"

	"github.com/coursemind/coursemind/internal/domain"
)

// FormatExtractor handles one document format.
type FormatExtractor interface {
	Extract(ctx context.Context, data []byte) (domain.ExtractedText, error)
}

// Extractor dispatches to format-specific extractors. Adding a format is
// adding a registry entry, not patching a dispatch chain.
type Extractor struct {
	formats map[domain.Format]FormatExtractor
}

// New creates an extractor with the default format set (txt, docx, pdf).
func New(runner CommandRunner) *Extractor {
	return &Extractor{formats: map[domain.Format]FormatExtractor{
		domain.FormatPlainText: &PlainText{},
		domain.FormatDOCX:      &DOCX{},
		domain.FormatPDF:       NewPDF(runner),
	}}
}

// Extract converts raw bytes of the declared format into extracted text.
func (e *Extractor) Extract(ctx context.Context, data []byte, format domain.Format) (domain.ExtractedText, error) {
	fe, ok := e.formats[format]
	if !ok {
		return domain.ExtractedText{}, domain.NewExtractionError(format, domain.ErrUnsupportedFormat)
	}
	text, err := fe.Extract(ctx, data)
	if err != nil {
		return domain.ExtractedText{}, err
	}
	return text, nil
}

// paginate splits raw text on form feeds into page-annotated text.
// The form feed characters are removed; each page start is recorded as a
// byte offset into the cleaned text. Text without form feeds is one page.
func paginate(raw string) domain.ExtractedText {
	if !strings.ContainsRune(raw, '\f') {
		return domain.ExtractedText{Text: raw, PageOffsets: []int{0}}
	}

	var b strings.Builder
	offsets := []int{0}
	for _, r := range raw {
		if r == '\f' {
			offsets = append(offsets, b.Len())
			continue
		}
		b.WriteRune(r)
	}

	text := b.String()

	// Drop a trailing empty page (pdftotext ends output with a form feed).
	if n := len(offsets); n > 1 && offsets[n-1] >= len(text) {
		offsets = offsets[:n-1]
	}

	return domain.ExtractedText{Text: text, PageOffsets: offsets}
}
