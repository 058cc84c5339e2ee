package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lesionscan/pkg/models"
)

// MemoryStore is an in-memory Store for development and tests.
// Jobs are copied on the way in and out so callers never share state with the map.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, imageRef string) (*models.Job, error) {
	now := s.now()
	job := &models.Job{
		ID:        uuid.New(),
		Status:    models.JobStatusPending,
		ImageRef:  imageRef,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return nil, fmt.Errorf("create job: %w: duplicate id %s", ErrStorage, job.ID)
	}
	s.jobs[job.ID] = job
	return cloneJob(job), nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) (*models.Job, error) {
	if _, err := allowedFrom(status); err != nil {
		return nil, err
	}
	params, err := buildUpdate(status, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !canTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	next := cloneJob(current)
	next.Status = status
	next.UpdatedAt = s.now()
	next.FailureReason = params.FailureReason
	if d := params.Diagnosis; d != nil {
		name, conf, rec := d.Name, d.Confidence, d.Recommendations
		next.Diagnosis = &name
		next.Confidence = &conf
		next.Recommendations = &rec
		next.PossibleConditions = append([]models.Condition(nil), d.Conditions...)
	}
	s.jobs[id] = next
	return cloneJob(next), nil
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	if j.PossibleConditions != nil {
		c.PossibleConditions = append([]models.Condition(nil), j.PossibleConditions...)
	}
	return &c
}

var _ Store = (*MemoryStore)(nil)
