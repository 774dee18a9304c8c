// Package memory is the in-process index driver: brute-force cosine over
// per-document entry groups under a single RWMutex. Grouping by document
// makes insert and delete of one document a single critical section, which
// is what gives searches all-or-nothing visibility of a document.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/index"
)

var _ index.Index = (*Index)(nil)

type record struct {
	entry index.Entry
	norm  float64
	words map[string]bool // lowercased word set of the chunk text
}

// Index is the in-memory embedding index.
type Index struct {
	mu        sync.RWMutex
	docs      map[string][]record
	dimension int
}

// New creates an empty index.
func New() *Index {
	return &Index{docs: make(map[string][]record)}
}

// InsertDocument implements index.Index.
func (ix *Index) InsertDocument(_ context.Context, documentID string, entries []index.Entry) error {
	records := make([]record, len(entries))
	for i, e := range entries {
		records[i] = record{
			entry: e,
			norm:  vectorNorm(e.Vector),
			words: wordSet(e.Chunk.Text),
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range entries {
		if ix.dimension == 0 {
			ix.dimension = len(e.Vector)
		}
		if len(e.Vector) != ix.dimension {
			return fmt.Errorf("%w: entry %s has dimension %d, index has %d",
				domain.ErrIndexCorruption, e.Chunk.ID, len(e.Vector), ix.dimension)
		}
	}

	ix.docs[documentID] = records
	return nil
}

// DeleteByDocument implements index.Index.
func (ix *Index) DeleteByDocument(_ context.Context, documentID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.docs, documentID)
	return nil
}

// Search implements index.Index. The filter is evaluated before ranking.
func (ix *Index) Search(_ context.Context, vector []float32, topK int, f index.Filter) ([]domain.RetrievalResult, error) {
	queryNorm := vectorNorm(vector)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dimension > 0 && len(vector) != ix.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index has %d",
			domain.ErrIndexCorruption, len(vector), ix.dimension)
	}

	var results []domain.RetrievalResult
	for docID, records := range ix.docs {
		for _, r := range records {
			// Structural self-check: a stored vector that no longer matches
			// the index dimension names its document for rebuild.
			if len(r.entry.Vector) != ix.dimension {
				return nil, &domain.CorruptionError{
					DocumentID: docID,
					Detail: fmt.Sprintf("entry %s has dimension %d, index has %d",
						r.entry.Chunk.ID, len(r.entry.Vector), ix.dimension),
				}
			}
			if !f.Matches(r.entry.Chunk) {
				continue
			}
			results = append(results, domain.RetrievalResult{
				Chunk: r.entry.Chunk,
				Score: cosine(vector, r.entry.Vector, queryNorm, r.norm),
			})
		}
	}

	return rank(results, topK), nil
}

// SearchKeyword implements index.Index. Score is the fraction of query
// terms present in the chunk's word set.
func (ix *Index) SearchKeyword(_ context.Context, terms []string, topK int, f index.Filter) ([]domain.RetrievalResult, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var results []domain.RetrievalResult
	for _, records := range ix.docs {
		for _, r := range records {
			if !f.Matches(r.entry.Chunk) {
				continue
			}
			matched := 0
			for _, t := range terms {
				if r.words[t] {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			results = append(results, domain.RetrievalResult{
				Chunk: r.entry.Chunk,
				Score: float64(matched) / float64(len(terms)),
			})
		}
	}

	return rank(results, topK), nil
}

// DocumentEntries implements index.Index.
func (ix *Index) DocumentEntries(_ context.Context, documentID string) ([]index.Entry, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	records, ok := ix.docs[documentID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}

	entries := make([]index.Entry, len(records))
	for i, r := range records {
		entries[i] = r.entry
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Chunk, entries[j].Chunk
		if a.Chapter != b.Chapter {
			return a.Chapter < b.Chapter
		}
		return a.Ordinal < b.Ordinal
	})
	return entries, nil
}

// Rebuild implements index.Index.
func (ix *Index) Rebuild(ctx context.Context, documentID string, entries []index.Entry) error {
	return ix.InsertDocument(ctx, documentID, entries)
}

// Stats implements index.Index.
func (ix *Index) Stats(_ context.Context) (index.Stats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	s := index.Stats{Documents: len(ix.docs), Dimension: ix.dimension}
	for _, records := range ix.docs {
		s.Entries += len(records)
	}
	return s, nil
}

// rank sorts by descending score with a deterministic tie-break on chunk id
// and truncates to topK.
func rank(results []domain.RetrievalResult, topK int) []domain.RetrievalResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, `.,!?;:"'()[]`)] = true
	}
	return set
}
