package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coursemind/coursemind/internal/domain"
)

func queuedJob(id string) domain.IngestionJob {
	return domain.IngestionJob{
		ID:         id,
		DocumentID: "doc-1",
		CourseID:   1,
		Status:     domain.JobQueued,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if err := s.Save(ctx, queuedJob("j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobQueued {
		t.Errorf("status = %s, want QUEUED", got.Status)
	}

	_, err = s.Get(ctx, "missing")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStoreClaimOnce(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := s.Save(ctx, queuedJob("j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	job, err := s.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if job.Status != domain.JobProcessing {
		t.Errorf("status = %s, want PROCESSING", job.Status)
	}

	_, err = s.Claim(ctx, "j1")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := s.Save(ctx, queuedJob("j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	updated, err := s.Update(ctx, "j1", func(j *domain.IngestionJob) {
		j.Messages = append(j.Messages, "Extracting text")
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Messages) != 1 || updated.Messages[0] != "Extracting text" {
		t.Errorf("messages = %v", updated.Messages)
	}

	_, err = s.Update(ctx, "missing", func(*domain.IngestionJob) {})
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestMemoryStoreTerminalTTL(t *testing.T) {
	current := time.Unix(1000, 0)
	s := NewMemoryStore(time.Hour).WithClock(func() time.Time { return current })
	ctx := context.Background()

	done := queuedJob("j1")
	done.Status = domain.JobSuccess
	if err := s.Save(ctx, done); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Within the retention window the terminal job is still readable.
	current = current.Add(30 * time.Minute)
	if _, err := s.Get(ctx, "j1"); err != nil {
		t.Fatalf("Get within TTL: %v", err)
	}

	// Past the window it is evicted.
	current = current.Add(31 * time.Minute)
	if _, err := s.Get(ctx, "j1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound after TTL", err)
	}
}

func TestMemoryStoreNonTerminalNeverExpires(t *testing.T) {
	current := time.Unix(1000, 0)
	s := NewMemoryStore(time.Minute).WithClock(func() time.Time { return current })
	ctx := context.Background()

	if err := s.Save(ctx, queuedJob("j1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	current = current.Add(24 * time.Hour)
	if _, err := s.Get(ctx, "j1"); err != nil {
		t.Errorf("queued job expired: %v", err)
	}
}

func TestMemoryStoreSweepOnSave(t *testing.T) {
	current := time.Unix(1000, 0)
	s := NewMemoryStore(time.Minute).WithClock(func() time.Time { return current })
	ctx := context.Background()

	old := queuedJob("old")
	old.Status = domain.JobFailure
	if err := s.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if err := s.Save(ctx, queuedJob("new")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s.mu.Lock()
	_, oldKept := s.jobs["old"]
	s.mu.Unlock()
	if oldKept {
		t.Error("expired terminal job survived the save sweep")
	}
}
