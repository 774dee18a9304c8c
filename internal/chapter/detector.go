// Package chapter segments extracted text into named, ordered chapter
// spans. Detection is pure pattern matching over lines, so re-running it on
// identical text yields identical boundaries and titles — the property that
// makes re-ingestion idempotent.
package chapter

import (
	"regexp"
	"strings"

	"github.com/coursemind/coursemind/internal/domain"
)

// DefaultTitle names the single fallback chapter when a document has no
// detectable structure and no usable file name.
const DefaultTitle = "Untitled"

var (
	chapterLine  = regexp.MustCompile(`(?i)^chapter\s+\d+\s*[:.\-]?\s*(.*)$`)
	numberedLine = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+(\S.*)$`)
	markdownLine = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	allCapsLine  = regexp.MustCompile(`^[A-Z][A-Z0-9 \-:&]{2,60}$`)
)

// maxHeadingWords rejects heading candidates that read like body sentences.
const maxHeadingWords = 12

// Detector finds chapter boundaries via heading heuristics.
type Detector struct{}

// New creates a chapter detector.
func New() *Detector { return &Detector{} }

// Detect returns the ordered chapter spans of the extracted text. When no
// heading is found, the whole document becomes one chapter titled with
// fallbackTitle (or DefaultTitle when empty). Text preceding the first
// heading is kept as a leading chapter rather than dropped.
func (d *Detector) Detect(text domain.ExtractedText, fallbackTitle string) []domain.Chapter {
	if fallbackTitle == "" {
		fallbackTitle = DefaultTitle
	}

	type boundary struct {
		title  string
		offset int
	}
	var bounds []boundary

	offset := 0
	for _, line := range strings.SplitAfter(text.Text, "\n") {
		trimmed := strings.TrimSpace(line)
		if title, ok := headingTitle(trimmed); ok {
			bounds = append(bounds, boundary{title: title, offset: offset})
		}
		offset += len(line)
	}

	if len(bounds) == 0 {
		return []domain.Chapter{spanChapter(text, fallbackTitle, 0, 0, len(text.Text))}
	}

	var chapters []domain.Chapter

	// Keep any preface text before the first heading.
	if head := text.Text[:bounds[0].offset]; strings.TrimSpace(head) != "" {
		chapters = append(chapters, spanChapter(text, fallbackTitle, 0, 0, bounds[0].offset))
	}

	for i, b := range bounds {
		end := len(text.Text)
		if i+1 < len(bounds) {
			end = bounds[i+1].offset
		}
		chapters = append(chapters, spanChapter(text, b.title, len(chapters), b.offset, end))
	}

	return chapters
}

// headingTitle reports whether a trimmed line looks like a chapter heading
// and returns its title. Patterns are checked in priority order.
func headingTitle(line string) (string, bool) {
	if line == "" || len(strings.Fields(line)) > maxHeadingWords {
		return "", false
	}

	if m := chapterLine.FindStringSubmatch(line); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title, true
		}
		return line, true
	}
	if m := markdownLine.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := numberedLine.FindStringSubmatch(line); m != nil {
		// Numbered body sentences end with terminal punctuation; headings don't.
		if title := strings.TrimSpace(m[1]); !strings.HasSuffix(title, ".") &&
			!strings.HasSuffix(title, "!") && !strings.HasSuffix(title, "?") {
			return title, true
		}
	}
	if allCapsLine.MatchString(line) {
		return line, true
	}
	return "", false
}

func spanChapter(text domain.ExtractedText, title string, ordinal, start, end int) domain.Chapter {
	ch := domain.Chapter{
		Title:       title,
		Ordinal:     ordinal,
		StartOffset: start,
		EndOffset:   end,
		StartPage:   text.PageAt(start),
		EndPage:     text.PageAt(start),
	}
	if end > start {
		ch.EndPage = text.PageAt(end - 1)
	}
	return ch
}
