package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitepdf/internal/crawler"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]crawler.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", crawler.ErrJobExists, job.ID)
	}
	if job.Status == "" {
		job.Status = crawler.JobStatusQueued
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job. A job in a
// terminal status only accepts the same status again.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() && job.Status != status {
		return fmt.Errorf("%w: %s is %s", crawler.ErrJobFinished, jobID, job.Status)
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// AddCounters adds delta to a running job's live counters. Jobs in any other
// status are left untouched.
func (s *JobStore) AddCounters(_ context.Context, jobID string, delta crawler.JobCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	if job.Status != crawler.JobStatusRunning {
		return nil
	}
	job.Counters.PagesCaptured += delta.PagesCaptured
	job.Counters.PagesFailed += delta.PagesFailed
	s.jobs[jobID] = job
	return nil
}

// SetArtifacts records where a job's outputs were written.
func (s *JobStore) SetArtifacts(_ context.Context, jobID string, artifacts crawler.JobArtifacts, warnings []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	job.Artifacts = artifacts
	job.Warnings = append([]string(nil), warnings...)
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("%w: %s", crawler.ErrJobNotFound, jobID)
	}
	return job, nil
}

// ListJobs returns every job, newest submission first.
func (s *JobStore) ListJobs(_ context.Context) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].ID < out[j].ID
		}
		return out[i].Submitted.After(out[j].Submitted)
	})
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
