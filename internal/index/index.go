// Package index defines the embedding index contract: the vector-store
// projection of chunks with filterable metadata.
package index

import (
	"context"

	"github.com/coursemind/coursemind/internal/domain"
)

// Entry is the index-resident projection of a chunk: its id and metadata
// plus the embedding vector, owned exclusively by the entry once computed.
type Entry struct {
	Chunk  domain.Chunk
	Vector []float32
}

// Filter restricts a search to matching entries. It is a hard constraint
// applied before ranking: entries outside the filter never appear in
// results regardless of score.
type Filter struct {
	CourseID *int64
	Chapter  string
}

// Matches reports whether a chunk satisfies the filter.
func (f Filter) Matches(c domain.Chunk) bool {
	if f.CourseID != nil && c.CourseID != *f.CourseID {
		return false
	}
	if f.Chapter != "" && c.ChapterTitle != f.Chapter {
		return false
	}
	return true
}

// Index stores chunk vectors and serves filtered similarity search.
//
// Mutations on a single document are atomic with respect to Search: a
// concurrent search observes either all or none of a document's entries.
type Index interface {
	// InsertDocument adds or replaces all entries for one document as a unit.
	InsertDocument(ctx context.Context, documentID string, entries []Entry) error
	// DeleteByDocument removes all entries for the document as a unit.
	DeleteByDocument(ctx context.Context, documentID string) error
	// Search returns up to topK entries by descending cosine similarity.
	Search(ctx context.Context, vector []float32, topK int, f Filter) ([]domain.RetrievalResult, error)
	// SearchKeyword returns up to topK entries by descending keyword-overlap
	// ratio over chunk text. Entries matching no term are omitted.
	SearchKeyword(ctx context.Context, terms []string, topK int, f Filter) ([]domain.RetrievalResult, error)
	// DocumentEntries returns the stored entries of one document, ordered by
	// chapter and chunk ordinal. Rebuild source.
	DocumentEntries(ctx context.Context, documentID string) ([]Entry, error)
	// Rebuild replaces a document's entries, clearing any corruption mark.
	Rebuild(ctx context.Context, documentID string, entries []Entry) error
	// Stats reports index-wide counters.
	Stats(ctx context.Context) (Stats, error)
}

// Stats summarizes the index content.
type Stats struct {
	Documents int
	Entries   int
	Dimension int
}
