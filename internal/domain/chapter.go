package domain

// Chapter is a named, ordered span of a document's extracted text.
// Created once during ingestion and never mutated.
type Chapter struct {
	Title   string
	Ordinal int // 0-based position within the document

	// Byte offsets into the extracted full text. EndOffset is exclusive.
	StartOffset int
	EndOffset   int

	// 1-based pages covering the span.
	StartPage int
	EndPage   int
}
