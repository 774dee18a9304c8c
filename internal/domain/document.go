package domain

import "strings"

// Format is a recognized upload format.
type Format string

const (
	FormatPDF       Format = "pdf"
	FormatDOCX      Format = "docx"
	FormatPlainText Format = "txt"
)

// FormatFromFilename derives the format from a file name extension.
// Unknown extensions return false; the caller decides how to fail.
func FormatFromFilename(name string) (Format, bool) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", false
	}
	switch strings.ToLower(name[idx+1:]) {
	case "pdf":
		return FormatPDF, true
	case "docx":
		return FormatDOCX, true
	case "txt", "text", "md":
		return FormatPlainText, true
	}
	return "", false
}

// DocumentRef identifies an uploaded document. The metadata store owns the
// full record; the core only needs identity, ownership, and format.
type DocumentRef struct {
	ID       string
	CourseID int64
	Name     string
	Format   Format
	Size     int64
}

// ExtractedText is the output of the text extraction stage: the full plain
// text and the byte offsets at which each page starts. PageOffsets is never
// empty for non-empty text; offset 0 is always the first page.
type ExtractedText struct {
	Text        string
	PageOffsets []int
}

// PageAt returns the 1-based page number containing the given byte offset.
func (e ExtractedText) PageAt(offset int) int {
	page := 1
	for i, start := range e.PageOffsets {
		if offset < start {
			break
		}
		page = i + 1
	}
	return page
}
