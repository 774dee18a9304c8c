package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Chunk is the smallest retrievable unit of a document. Chunks are created
// during ingestion, never mutated, and deleted en masse with their document.
type Chunk struct {
	ID           string
	DocumentID   string
	CourseID     int64
	ChapterTitle string
	Chapter      int // chapter ordinal
	Ordinal      int // position within the chapter
	Text         string
	WordCount    int
	Page         int // 1-based page of the chunk's first word

	// OverlapWords is how many leading words this chunk shares with its
	// predecessor. Zero for the first chunk of a chapter.
	OverlapWords int
}

// ChunkID derives the stable chunk identity from document id, chapter
// ordinal, and chunk ordinal. Re-chunking the same document yields the same
// ids, which makes re-ingestion an upsert.
func ChunkID(documentID string, chapter, ordinal int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", documentID, chapter, ordinal)))
	return hex.EncodeToString(h[:8])
}

// ChunkStatistics summarizes one document's chunks for the job result.
type ChunkStatistics struct {
	TotalChunks    int      `json:"total_chunks"`
	TotalWords     int      `json:"total_words"`
	UniqueChapters int      `json:"unique_chapters"`
	Chapters       []string `json:"chapters"`
}

// Statistics computes chunk statistics. Chapter titles are sorted so the
// output is deterministic for identical input.
func Statistics(chunks []Chunk) ChunkStatistics {
	stats := ChunkStatistics{TotalChunks: len(chunks)}
	seen := make(map[string]bool)
	for _, c := range chunks {
		stats.TotalWords += c.WordCount
		if c.ChapterTitle != "" && !seen[c.ChapterTitle] {
			seen[c.ChapterTitle] = true
			stats.Chapters = append(stats.Chapters, c.ChapterTitle)
		}
	}
	sort.Strings(stats.Chapters)
	stats.UniqueChapters = len(stats.Chapters)
	return stats
}
