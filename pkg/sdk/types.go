package coursemind

import (
	"context"

	"github.com/coursemind/coursemind/internal/domain"
)

// Embedder turns text into a vector. Implementations typically wrap a
// remote embedding API.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Completer synthesizes an answer from a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Job statuses. A job is done once it reaches StatusSuccess or StatusFailure.
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusSuccess    = "SUCCESS"
	StatusFailure    = "FAILURE"
)

// IngestionJob is a snapshot of one document's pipeline run.
type IngestionJob struct {
	ID         string
	DocumentID string
	CourseID   int64
	Status     string
	Messages   []string
	Result     *IngestionResult
	Error      string
}

// IngestionResult is the terminal payload of a successful job.
type IngestionResult struct {
	ChunksCreated int
	Chapters      []string
	TotalWords    int
}

// Done reports whether the job reached a terminal status.
func (j IngestionJob) Done() bool {
	return j.Status == StatusSuccess || j.Status == StatusFailure
}

// QueryRequest are the per-query knobs.
type QueryRequest struct {
	Query         string
	CourseID      *int64
	Chapter       string
	TopK          int
	Hybrid        bool
	WithCitations bool
}

// Answer is the synthesized response to a query.
type Answer struct {
	Query     string
	Text      string
	Sources   []Source
	Citations []Citation
	FollowUps []string

	// Degraded marks an answer assembled from raw excerpts because
	// synthesis failed; Sources still carry the retrieved content.
	Degraded bool
}

// Source is one retrieved chunk backing the answer.
type Source struct {
	Chapter string
	Page    int
	Score   float64
	Text    string
}

// Citation is a (chapter, document, page) reference.
type Citation struct {
	Chapter    string
	DocumentID string
	Page       int
}

// IndexStats summarizes the vector index content.
type IndexStats struct {
	Documents int
	Entries   int
	Dimension int
}

func jobFromDomain(j domain.IngestionJob) IngestionJob {
	out := IngestionJob{
		ID:         j.ID,
		DocumentID: j.DocumentID,
		CourseID:   j.CourseID,
		Status:     string(j.Status),
		Messages:   j.Messages,
		Error:      j.Error,
	}
	if j.Result != nil {
		out.Result = &IngestionResult{
			ChunksCreated: j.Result.ChunksCreated,
			Chapters:      j.Result.Chapters,
			TotalWords:    j.Result.Statistics.TotalWords,
		}
	}
	return out
}

func answerFromDomain(a domain.Answer) Answer {
	out := Answer{
		Query:     a.Query,
		Text:      a.Text,
		FollowUps: a.FollowUps,
		Degraded:  a.Degraded,
	}
	for _, s := range a.Sources {
		out.Sources = append(out.Sources, Source{
			Chapter: s.Chunk.ChapterTitle,
			Page:    s.Chunk.Page,
			Score:   s.Score,
			Text:    s.Chunk.Text,
		})
	}
	for _, c := range a.Citations {
		out.Citations = append(out.Citations, Citation{
			Chapter:    c.Chapter,
			DocumentID: c.DocumentID,
			Page:       c.Page,
		})
	}
	return out
}
