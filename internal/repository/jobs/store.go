// Package jobs persists ingestion job state. The pipeline worker is the
// only mutator of a claimed job; clients read snapshots by id. Terminal
// jobs are retained for a bounded window, then evicted.
package jobs

import (
	"context"
	"errors"

	"github.com/coursemind/coursemind/internal/domain"
)

const keyPrefix = domain.KeyPrefix + "jobs:"

// ErrAlreadyClaimed signals a second claim on the same job.
var ErrAlreadyClaimed = errors.New("job already claimed")

// Store is the ingestion job store contract.
type Store interface {
	// Save writes a job snapshot. Terminal jobs start their retention TTL.
	Save(ctx context.Context, job domain.IngestionJob) error
	// Get returns a job snapshot or domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (domain.IngestionJob, error)
	// Claim transitions a job from QUEUED to PROCESSING. It succeeds at most
	// once per job; a second claim returns ErrAlreadyClaimed.
	Claim(ctx context.Context, id string) (domain.IngestionJob, error)
	// Update applies mutate to the stored job and writes it back.
	Update(ctx context.Context, id string, mutate func(*domain.IngestionJob)) (domain.IngestionJob, error)
}

func jobKey(id string) string { return keyPrefix + id }
