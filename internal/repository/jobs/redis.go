package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursemind/coursemind/internal/db"
	"github.com/coursemind/coursemind/internal/domain"
)

var _ Store = (*RedisStore)(nil)

// RedisStore persists jobs as JSON values in the KV store, mirroring the
// per-task status key the upload pipeline historically used. Terminal jobs
// carry the retention TTL and expire server-side.
type RedisStore struct {
	store db.KVStore
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore creates a KV-backed job store retaining terminal jobs for ttl.
func NewRedisStore(store db.KVStore, ttl time.Duration) *RedisStore {
	return &RedisStore{store: store, ttl: ttl, now: time.Now}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, job domain.IngestionJob) error {
	return s.write(ctx, job)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.IngestionJob, error) {
	data, err := s.store.Get(ctx, jobKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.IngestionJob{}, domain.ErrJobNotFound
		}
		return domain.IngestionJob{}, fmt.Errorf("get job %s: %w", id, err)
	}

	var job domain.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.IngestionJob{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// Claim implements Store. A single worker owns each queued job (the queue
// hands a job to exactly one worker), so get-check-set is sufficient here.
func (s *RedisStore) Claim(ctx context.Context, id string) (domain.IngestionJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return domain.IngestionJob{}, err
	}
	if job.Status != domain.JobQueued {
		return domain.IngestionJob{}, ErrAlreadyClaimed
	}

	job.Status = domain.JobProcessing
	job.UpdatedAt = s.now()
	if err := s.write(ctx, job); err != nil {
		return domain.IngestionJob{}, err
	}
	return job, nil
}

// Update implements Store.
func (s *RedisStore) Update(ctx context.Context, id string, mutate func(*domain.IngestionJob)) (domain.IngestionJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return domain.IngestionJob{}, err
	}

	mutate(&job)
	job.UpdatedAt = s.now()
	if err := s.write(ctx, job); err != nil {
		return domain.IngestionJob{}, err
	}
	return job, nil
}

func (s *RedisStore) write(ctx context.Context, job domain.IngestionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	if job.Status.Terminal() {
		if err := s.store.SetWithTTL(ctx, jobKey(job.ID), data, s.ttl); err != nil {
			return fmt.Errorf("save job %s: %w", job.ID, err)
		}
		return nil
	}
	if err := s.store.Set(ctx, jobKey(job.ID), data); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
