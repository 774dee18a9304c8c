package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/coursemind/coursemind/internal/domain"
	"github.com/coursemind/coursemind/internal/index"
)

func entry(id, docID string, courseID int64, chapterTitle, text string, vec []float32) index.Entry {
	return index.Entry{
		Chunk: domain.Chunk{
			ID:           id,
			DocumentID:   docID,
			CourseID:     courseID,
			ChapterTitle: chapterTitle,
			Text:         text,
		},
		Vector: vec,
	}
}

func mustInsert(t *testing.T, ix *Index, docID string, entries ...index.Entry) {
	t.Helper()
	if err := ix.InsertDocument(context.Background(), docID, entries); err != nil {
		t.Fatalf("InsertDocument(%s): %v", docID, err)
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1",
		entry("a", "doc-1", 1, "Intro", "alpha", []float32{1, 0}),
		entry("b", "doc-1", 1, "Intro", "beta", []float32{0, 1}),
		entry("c", "doc-1", 1, "Intro", "gamma", []float32{0.7, 0.7}),
	)

	results, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Chunk.ID != "a" {
		t.Errorf("top result = %q, want a", results[0].Chunk.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not non-increasing at %d: %f > %f", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSearchTopKTruncation(t *testing.T) {
	ix := New()
	var entries []index.Entry
	for i := 0; i < 20; i++ {
		entries = append(entries, entry(fmt.Sprintf("c%02d", i), "doc-1", 1, "Ch", "text", []float32{1, float32(i) / 20}))
	}
	mustInsert(t, ix, "doc-1", entries...)

	results, err := ix.Search(context.Background(), []float32{1, 0}, 5, index.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Errorf("got %d results, want 5", len(results))
	}
}

func TestSearchFilterIsHardConstraint(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1", entry("a", "doc-1", 1, "Intro", "alpha", []float32{1, 0}))
	mustInsert(t, ix, "doc-2", entry("b", "doc-2", 2, "Intro", "beta", []float32{1, 0}))

	courseOne := int64(1)
	results, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{CourseID: &courseOne})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// doc-2 scores a perfect match but belongs to another course; it must
	// never appear.
	if len(results) != 1 || results[0].Chunk.ID != "a" {
		t.Errorf("results = %+v, want only chunk a", results)
	}

	results, err = ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{Chapter: "Nowhere"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("chapter filter leaked %d results", len(results))
	}
}

func TestSearchTieBreakDeterministic(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1",
		entry("zz", "doc-1", 1, "Ch", "same", []float32{1, 0}),
		entry("aa", "doc-1", 1, "Ch", "same", []float32{1, 0}),
	)

	for i := 0; i < 5; i++ {
		results, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if results[0].Chunk.ID != "aa" || results[1].Chunk.ID != "zz" {
			t.Fatalf("run %d: tie not broken by id: %q, %q", i, results[0].Chunk.ID, results[1].Chunk.ID)
		}
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1", entry("a", "doc-1", 1, "Ch", "text", []float32{1, 0, 0}))

	_, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
	if !errors.Is(err, domain.ErrIndexCorruption) {
		t.Errorf("error = %v, want ErrIndexCorruption", err)
	}
}

func TestSearchReportsCorruptDocument(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1", entry("a", "doc-1", 1, "Ch", "text", []float32{1, 0}))
	mustInsert(t, ix, "doc-2", entry("b", "doc-2", 1, "Ch", "text", []float32{0, 1}))

	// Simulate a torn write behind the index's back.
	ix.mu.Lock()
	ix.docs["doc-2"][0].entry.Vector = []float32{1}
	ix.mu.Unlock()

	_, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
	var corrupt *domain.CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("error = %v, want CorruptionError", err)
	}
	if corrupt.DocumentID != "doc-2" {
		t.Errorf("corrupt document = %q, want doc-2", corrupt.DocumentID)
	}
	if !errors.Is(err, domain.ErrIndexCorruption) {
		t.Errorf("error = %v, want it to unwrap to ErrIndexCorruption", err)
	}
}

func TestInsertDimensionMismatch(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1", entry("a", "doc-1", 1, "Ch", "text", []float32{1, 0}))

	err := ix.InsertDocument(context.Background(), "doc-2",
		[]index.Entry{entry("b", "doc-2", 1, "Ch", "text", []float32{1, 0, 0})})
	if !errors.Is(err, domain.ErrIndexCorruption) {
		t.Errorf("error = %v, want ErrIndexCorruption", err)
	}
}

func TestInsertReplacesDocument(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1",
		entry("a", "doc-1", 1, "Ch", "old text", []float32{1, 0}),
		entry("b", "doc-1", 1, "Ch", "old text", []float32{0, 1}),
	)
	mustInsert(t, ix, "doc-1", entry("c", "doc-1", 1, "Ch", "new text", []float32{1, 0}))

	stats, err := ix.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v, want 1 document with 1 entry", stats)
	}
}

func TestDeleteByDocument(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1", entry("a", "doc-1", 1, "Ch", "text", []float32{1, 0}))
	mustInsert(t, ix, "doc-2", entry("b", "doc-2", 1, "Ch", "text", []float32{0, 1}))

	if err := ix.DeleteByDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}

	results, err := ix.Search(context.Background(), []float32{1, 0}, 10, index.Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.DocumentID == "doc-1" {
			t.Errorf("deleted document still searchable: %+v", r.Chunk)
		}
	}

	// Deleting an absent document is a no-op.
	if err := ix.DeleteByDocument(context.Background(), "ghost"); err != nil {
		t.Errorf("delete of absent document: %v", err)
	}
}

func TestSearchKeyword(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1",
		entry("a", "doc-1", 1, "Ch", "Neural networks learn representations.", []float32{1, 0}),
		entry("b", "doc-1", 1, "Ch", "Decision trees split on features.", []float32{0, 1}),
	)

	results, err := ix.SearchKeyword(context.Background(), []string{"neural", "networks"}, 10, index.Filter{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Chunk.ID != "a" {
		t.Errorf("matched %q, want a", results[0].Chunk.ID)
	}
	if results[0].Score != 1.0 {
		t.Errorf("score = %f, want 1.0 (all terms matched)", results[0].Score)
	}

	results, err = ix.SearchKeyword(context.Background(), []string{"neural", "features"}, 10, index.Filter{})
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Score != 0.5 {
			t.Errorf("chunk %s score = %f, want 0.5", r.Chunk.ID, r.Score)
		}
	}

	if results, _ := ix.SearchKeyword(context.Background(), nil, 10, index.Filter{}); results != nil {
		t.Errorf("empty terms should return nil, got %d results", len(results))
	}
}

func TestDocumentEntriesOrdered(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "doc-1",
		entry("c", "doc-1", 1, "Two", "later", []float32{1, 0}),
		entry("a", "doc-1", 1, "One", "first", []float32{1, 0}),
		entry("b", "doc-1", 1, "One", "second", []float32{1, 0}),
	)
	entries, err := ix.DocumentEntries(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("DocumentEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	_, err = ix.DocumentEntries(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	ix := New()
	mustInsert(t, ix, "seed", entry("s", "seed", 1, "Ch", "seed", []float32{1, 0}))

	const docEntries = 8
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			docID := fmt.Sprintf("doc-%d", w)
			var entries []index.Entry
			for i := 0; i < docEntries; i++ {
				entries = append(entries, entry(fmt.Sprintf("%s-c%d", docID, i), docID, 1, "Ch", "text", []float32{1, 0}))
			}
			for i := 0; i < 50; i++ {
				_ = ix.InsertDocument(context.Background(), docID, entries)
				_ = ix.DeleteByDocument(context.Background(), docID)
			}
		}(w)
	}

	// A document's entries must be visible all-or-nothing: result counts per
	// document are always 0 or docEntries.
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	for {
		select {
		case <-done:
			return
		default:
		}
		results, err := ix.Search(context.Background(), []float32{1, 0}, 0, index.Filter{})
		if err != nil {
			t.Errorf("Search: %v", err)
			return
		}
		perDoc := make(map[string]int)
		for _, r := range results {
			perDoc[r.Chunk.DocumentID]++
		}
		for doc, n := range perDoc {
			if doc == "seed" {
				continue
			}
			if n != docEntries {
				t.Errorf("document %s partially visible: %d of %d entries", doc, n, docEntries)
				return
			}
		}
	}
}
