package domain

import "time"

// JobStatus is the ingestion job state. Transitions:
// QUEUED -> PROCESSING -> {SUCCESS | FAILURE}.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobProcessing JobStatus = "PROCESSING"
	JobSuccess    JobStatus = "SUCCESS"
	JobFailure    JobStatus = "FAILURE"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailure
}

// IngestionJob tracks one document's pipeline run. Mutated only by the
// worker that claimed it; clients poll a snapshot by id.
type IngestionJob struct {
	ID         string           `json:"job_id"`
	DocumentID string           `json:"document_id"`
	CourseID   int64            `json:"course_id"`
	Status     JobStatus        `json:"status"`
	Messages   []string         `json:"progress_messages"`
	Result     *IngestionResult `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// IngestionResult is the terminal payload of a successful job.
type IngestionResult struct {
	ChunksCreated int             `json:"chunks_created"`
	Chapters      []string        `json:"chapters"`
	Statistics    ChunkStatistics `json:"statistics"`
}
