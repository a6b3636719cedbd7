// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/litrev/harvester/internal/scholar"
)

// JobStore keeps job state in a process-local map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scholar.JobState
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]scholar.JobState)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job *scholar.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

// LoadJob fetches a job by ID.
func (s *JobStore) LoadJob(_ context.Context, jobID string) (*scholar.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, scholar.ErrJobNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

// ListJobs returns all jobs in unspecified order.
func (s *JobStore) ListJobs(_ context.Context) ([]*scholar.JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*scholar.JobState, 0, len(s.jobs))
	for _, job := range s.jobs {
		j := cloneJob(job)
		out = append(out, &j)
	}
	return out, nil
}

// DeleteJob removes a job.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return scholar.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

// MarkRunning transitions the job to running.
func (s *JobStore) MarkRunning(_ context.Context, jobID string, startedAt time.Time) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Status = scholar.JobStatusRunning
		job.ErrorMessage = ""
		if job.StartedAt == nil {
			t := startedAt
			job.StartedAt = &t
		}
	})
}

// MarkPaused transitions the job to paused.
func (s *JobStore) MarkPaused(_ context.Context, jobID string) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Status = scholar.JobStatusPaused
	})
}

// MarkPending transitions the job back to pending for a re-run.
func (s *JobStore) MarkPending(_ context.Context, jobID string) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Status = scholar.JobStatusPending
	})
}

// MarkCompleted records the terminal success state, clearing any checkpoint
// and forcing progress to 100.
func (s *JobStore) MarkCompleted(_ context.Context, jobID string, upd scholar.CompletionUpdate) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Status = scholar.JobStatusCompleted
		job.Progress = 100
		job.TotalFound = upd.TotalFound
		job.ProcessedCount = upd.Processed
		job.Artifacts = upd.Artifacts
		job.PRISMA = upd.PRISMA
		job.Checkpoint = nil
		job.ErrorMessage = ""
		t := upd.CompletedAt
		job.CompletedAt = &t
	})
}

// MarkFailed records the failure state together with the resume checkpoint.
func (s *JobStore) MarkFailed(_ context.Context, jobID string, upd scholar.FailureUpdate) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Status = scholar.JobStatusFailed
		job.ErrorMessage = upd.ErrorMessage
		job.RetryCount = upd.RetryCount
		if upd.Checkpoint != nil {
			cp := *upd.Checkpoint
			job.Checkpoint = &cp
		}
	})
}

// UpdateProgress stores the running counters.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, progress float64, processed, totalFound int) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		job.Progress = progress
		job.ProcessedCount = processed
		job.TotalFound = totalFound
	})
}

// SaveCheckpoint stores the resume point.
func (s *JobStore) SaveCheckpoint(_ context.Context, jobID string, cp scholar.Checkpoint) error {
	return s.mutate(jobID, func(job *scholar.JobState) {
		c := cp
		job.Checkpoint = &c
	})
}

func (s *JobStore) mutate(jobID string, fn func(*scholar.JobState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scholar.ErrJobNotFound
	}
	fn(&job)
	s.jobs[jobID] = job
	return nil
}

func cloneJob(job scholar.JobState) scholar.JobState {
	if job.Checkpoint != nil {
		cp := *job.Checkpoint
		job.Checkpoint = &cp
	}
	if job.PRISMA != nil {
		p := *job.PRISMA
		job.PRISMA = &p
	}
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
