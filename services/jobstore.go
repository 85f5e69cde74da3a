package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"mediafetch/types"
)

// JobStore interface defines the registry of job state.
// Implementations return copies; mutation only happens through Update.
type JobStore interface {
	Insert(job types.Job) error
	Get(id string) (types.Job, error)
	List() ([]types.Job, error)
	// Update applies fn to the stored job under the store's write lock.
	// If fn returns an error nothing is written.
	Update(id string, fn func(job *types.Job) error) (types.Job, error)
	Delete(id string) error
	Close() error
}

// memoryStore keeps jobs in a map; nothing survives a restart
type memoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

// NewMemoryStore creates an in-memory job store
func NewMemoryStore() JobStore {
	return &memoryStore{
		jobs: make(map[string]*types.Job),
	}
}

func (s *memoryStore) Insert(job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return errDuplicateJob(job.ID)
	}
	stored := cloneJob(job)
	s.jobs[job.ID] = &stored
	return nil
}

func (s *memoryStore) Get(id string) (types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return types.Job{}, ErrJobNotFound
	}
	return cloneJob(*job), nil
}

func (s *memoryStore) List() ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(*job))
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *memoryStore) Update(id string, fn func(job *types.Job) error) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return types.Job{}, ErrJobNotFound
	}

	working := cloneJob(*job)
	if err := fn(&working); err != nil {
		return cloneJob(*job), err
	}
	*job = working
	return cloneJob(working), nil
}

func (s *memoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}

// cloneJob copies the pointer fields so callers never share state with the store
func cloneJob(job types.Job) types.Job {
	if job.StartedAt != nil {
		t := *job.StartedAt
		job.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		job.CompletedAt = &t
	}
	return job
}

// sortJobs orders newest first, ties broken by id
func sortJobs(jobs []types.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func errDuplicateJob(id string) error {
	return fmt.Errorf("job %s already exists", id)
}
