package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/coursemind/coursemind/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

type memoryJob struct {
	job       domain.IngestionJob
	expiresAt time.Time // zero = no expiry
}

// MemoryStore is the in-process job store. Terminal jobs expire after ttl;
// eviction is lazy on read plus a sweep on every write.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]memoryJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryStore creates a job store retaining terminal jobs for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]memoryJob), ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Test seam.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, job domain.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.put(job)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, id string) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(id)
	if err != nil {
		return domain.IngestionJob{}, err
	}
	if job.Status != domain.JobQueued {
		return domain.IngestionJob{}, ErrAlreadyClaimed
	}

	job.Status = domain.JobProcessing
	job.UpdatedAt = s.now()
	s.put(job)
	return job, nil
}

// Update implements Store.
func (s *MemoryStore) Update(_ context.Context, id string, mutate func(*domain.IngestionJob)) (domain.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.get(id)
	if err != nil {
		return domain.IngestionJob{}, err
	}

	mutate(&job)
	job.UpdatedAt = s.now()
	s.put(job)
	return job, nil
}

func (s *MemoryStore) get(id string) (domain.IngestionJob, error) {
	m, ok := s.jobs[id]
	if !ok || (!m.expiresAt.IsZero() && s.now().After(m.expiresAt)) {
		delete(s.jobs, id)
		return domain.IngestionJob{}, domain.ErrJobNotFound
	}
	return m.job, nil
}

func (s *MemoryStore) put(job domain.IngestionJob) {
	m := memoryJob{job: job}
	if job.Status.Terminal() {
		m.expiresAt = s.now().Add(s.ttl)
	}
	s.jobs[job.ID] = m
}

func (s *MemoryStore) sweep() {
	now := s.now()
	for id, m := range s.jobs {
		if !m.expiresAt.IsZero() && now.After(m.expiresAt) {
			delete(s.jobs, id)
		}
	}
}
