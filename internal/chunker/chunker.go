// Package chunker splits chapter text into overlapping word-window chunks
// with stable identity. Chunk ids are a pure function of (document id,
// chapter ordinal, chunk ordinal), so re-chunking an unchanged document is
// an upsert: same ids, same spans.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/coursemind/coursemind/internal/domain"
)

// Chunker slices chapters into chunks of at most maxWords words where
// consecutive chunks within a chapter share overlap words.
type Chunker struct {
	maxWords int
	overlap  int
}

// New creates a chunker. overlap must be smaller than maxWords or the
// window could not advance.
func New(maxWords, overlap int) (*Chunker, error) {
	if maxWords <= 0 {
		return nil, fmt.Errorf("%w: max words must be positive, got %d", domain.ErrChunking, maxWords)
	}
	if overlap < 0 || overlap >= maxWords {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrChunking, overlap, maxWords)
	}
	return &Chunker{maxWords: maxWords, overlap: overlap}, nil
}

// token is one word and its byte span within the full extracted text.
type token struct {
	word  string
	start int
	end   int
}

// Chunk slices one chapter. The window end snaps back to the last
// sentence-terminal word when one exists past the overlap floor, otherwise
// the cut is a hard one at maxWords. Every chapter with any words yields at
// least one chunk; the union of all chunks' non-overlapping word spans is
// exactly the chapter's word sequence.
func (c *Chunker) Chunk(doc domain.DocumentRef, text domain.ExtractedText, ch domain.Chapter) []domain.Chunk {
	tokens := tokenize(text.Text, ch.StartOffset, ch.EndOffset)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []domain.Chunk
	start := 0
	for ordinal := 0; ; ordinal++ {
		end := start + c.maxWords
		if end >= len(tokens) {
			end = len(tokens)
		} else if cut := lastSentenceEnd(tokens, start+c.overlap+1, end); cut > 0 {
			end = cut
		}

		span := text.Text[tokens[start].start:tokens[end-1].end]
		shared := 0
		if ordinal > 0 {
			shared = c.overlap
		}
		chunks = append(chunks, domain.Chunk{
			ID:           domain.ChunkID(doc.ID, ch.Ordinal, ordinal),
			DocumentID:   doc.ID,
			CourseID:     doc.CourseID,
			ChapterTitle: ch.Title,
			Chapter:      ch.Ordinal,
			Ordinal:      ordinal,
			Text:         span,
			WordCount:    end - start,
			Page:         text.PageAt(tokens[start].start),
			OverlapWords: shared,
		})

		if end == len(tokens) {
			return chunks
		}
		start = end - c.overlap
	}
}

// tokenize returns the words of text[start:end] with absolute byte spans.
func tokenize(text string, start, end int) []token {
	var tokens []token
	inWord := false
	wordStart := 0
	for i := start; i < end; i++ {
		space := unicode.IsSpace(rune(text[i]))
		switch {
		case !inWord && !space:
			inWord = true
			wordStart = i
		case inWord && space:
			tokens = append(tokens, token{word: text[wordStart:i], start: wordStart, end: i})
			inWord = false
		}
	}
	if inWord {
		tokens = append(tokens, token{word: text[wordStart:end], start: wordStart, end: end})
	}
	return tokens
}

// lastSentenceEnd returns the exclusive end index of the last
// sentence-terminal word in tokens[floor-1:limit], or 0 when none exists.
// floor keeps the window advancing past the overlap region.
func lastSentenceEnd(tokens []token, floor, limit int) int {
	for j := limit; j >= floor; j-- {
		if endsSentence(tokens[j-1].word) {
			return j
		}
	}
	return 0
}

// endsSentence reports whether a word terminates a sentence, ignoring
// trailing quotes and brackets.
func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]`+"”’")
	if word == "" {
		return false
	}
	switch word[len(word)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
