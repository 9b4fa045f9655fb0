package storage

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagrab/internal/models"
)

var ErrNotFound = errors.New("job not found")

// Storage is the in-memory job registry. Every read returns a copy and every
// write goes through Update, so a caller never observes a half-applied change.
type Storage struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	order []string
	now   func() time.Time
}

func New() *Storage {
	return &Storage{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
}

func (s *Storage) Create(url, formatID string) string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[id] = &models.Job{
		ID:        id,
		URL:       url,
		FormatID:  formatID,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.order = append(s.order, id)
	return id
}

func (s *Storage) Get(id string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies mutate to a copy of the job and commits it only when the
// resulting status is reachable from the current one. It reports whether the
// change was committed; a missing job is silently ignored.
func (s *Storage) Update(id string, mutate func(*models.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}

	next := job.Clone()
	mutate(&next)
	next.ID, next.URL, next.FormatID, next.CreatedAt = job.ID, job.URL, job.FormatID, job.CreatedAt

	if !job.Status.CanTransitionTo(next.Status) {
		slog.Warn("Rejected job update", "id", id, "from", job.Status, "to", next.Status)
		return false
	}

	next.UpdatedAt = s.now()
	if next.Status.IsTerminal() {
		next.FinishedAt = models.Ptr(next.UpdatedAt)
	}
	*job = next
	return true
}

func (s *Storage) List() []models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]models.Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id].Clone())
	}
	return jobs
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep removes terminal jobs that finished before cutoff and returns them.
func (s *Storage) Sweep(cutoff time.Time) []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.Job
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			removed = append(removed, job.Clone())
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}
