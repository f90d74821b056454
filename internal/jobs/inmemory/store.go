package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/smart-financial-parser/internal/jobs"
)

// Store is an in-memory implementation of JobStore and ResultStore.
// It is safe for concurrent use. Data is lost on service restart.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.CleanFileJob
	results map[string]*jobs.Result
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*jobs.CleanFileJob),
		results: make(map[string]*jobs.Result),
	}
}

// SaveJob saves or updates a copy of job.
func (s *Store) SaveJob(ctx context.Context, job *jobs.CleanFileJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	return nil
}

// GetJob returns a copy of the job with jobID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.CleanFileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs returns copies of the matching jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.CleanFileJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.CleanFileJob{}
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.CleanFileJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus sets the status and, when non-empty, the error message of a job.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

// SaveResult stores the output of a job.
func (s *Store) SaveResult(ctx context.Context, jobID string, result *jobs.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resCopy := *result
	s.results[jobID] = &resCopy
	return nil
}

// GetResult returns the stored output of a job.
func (s *Store) GetResult(ctx context.Context, jobID string) (*jobs.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, exists := s.results[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: no result for %s", jobs.ErrJobNotFound, jobID)
	}
	resCopy := *res
	return &resCopy, nil
}

var (
	_ jobs.JobStore    = (*Store)(nil)
	_ jobs.ResultStore = (*Store)(nil)
)

// Prune removes completed and failed jobs, with their results, that finished before cutoff.
// It returns the number of jobs removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		final := job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed
		if !final || job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
			continue
		}
		delete(s.jobs, id)
		delete(s.results, id)
		removed++
	}
	return removed
}
