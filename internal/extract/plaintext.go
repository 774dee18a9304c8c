package extract

import (
	"context"
	"unicode/utf8"

	"github.com/coursemind/coursemind/internal/domain"
)

// PlainText handles UTF-8 text uploads. Form feeds, when present, mark page
// boundaries; otherwise the whole document is one page.
type PlainText struct{}

// Extract implements FormatExtractor.
func (p *PlainText) Extract(_ context.Context, data []byte) (domain.ExtractedText, error) {
	if !utf8.Valid(data) {
		return domain.ExtractedText{}, domain.NewExtractionError(domain.FormatPlainText, domain.ErrParseFailure)
	}
	return paginate(string(data)), nil
}
