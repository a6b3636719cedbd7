package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/litrev/harvester/internal/scholar"
)

func newJob(id string) *scholar.JobState {
	return &scholar.JobState{
		ID:     id,
		Name:   "job " + id,
		Status: scholar.JobStatusPending,
		Criteria: scholar.SearchCriteria{
			IncludeKeywords: []string{"coral"},
			StartYear:       2019,
			EndYear:         2021,
		},
		CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestJobStoreCreateLoadDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()

	require.NoError(t, s.CreateJob(ctx, newJob("a")))
	require.Error(t, s.CreateJob(ctx, newJob("a")))

	job, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "job a", job.Name)

	_, err = s.LoadJob(ctx, "missing")
	require.ErrorIs(t, err, scholar.ErrJobNotFound)

	require.NoError(t, s.DeleteJob(ctx, "a"))
	require.ErrorIs(t, s.DeleteJob(ctx, "a"), scholar.ErrJobNotFound)
}

func TestJobStoreLoadReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()

	job := newJob("a")
	job.Checkpoint = &scholar.Checkpoint{LastCompletedYear: 2019}
	require.NoError(t, s.CreateJob(ctx, job))

	first, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	first.Checkpoint.LastCompletedYear = 1999
	first.Name = "mutated"

	second, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 2019, second.Checkpoint.LastCompletedYear)
	require.Equal(t, "job a", second.Name)
}

func TestJobStoreLifecycleTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkRunning(ctx, "a", started))
	job, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusRunning, job.Status)
	require.Equal(t, started, *job.StartedAt)

	require.NoError(t, s.MarkPaused(ctx, "a"))
	job, err = s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusPaused, job.Status)

	require.NoError(t, s.MarkPending(ctx, "a"))
	job, err = s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusPending, job.Status)

	// A second MarkRunning must not clobber the original start time.
	require.NoError(t, s.MarkRunning(ctx, "a", started.Add(time.Hour)))
	job, err = s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, started, *job.StartedAt)

	require.ErrorIs(t, s.MarkPaused(ctx, "missing"), scholar.ErrJobNotFound)
}

func TestJobStoreMarkFailedKeepsCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))

	cp := &scholar.Checkpoint{LastCompletedYear: 2020, PapersCollected: 31}
	require.NoError(t, s.MarkFailed(ctx, "a", scholar.FailureUpdate{
		ErrorMessage: "all strategies failed",
		Checkpoint:   cp,
		RetryCount:   2,
	}))
	job, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusFailed, job.Status)
	require.Equal(t, 2, job.RetryCount)
	require.Equal(t, "all strategies failed", job.ErrorMessage)
	require.Equal(t, 2020, job.Checkpoint.LastCompletedYear)

	// A later failure without a checkpoint keeps the previous one.
	require.NoError(t, s.MarkFailed(ctx, "a", scholar.FailureUpdate{
		ErrorMessage: "again",
		RetryCount:   3,
	}))
	job, err = s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 2020, job.Checkpoint.LastCompletedYear)
}

func TestJobStoreMarkCompletedClearsResumeState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))
	require.NoError(t, s.SaveCheckpoint(ctx, "a", scholar.Checkpoint{LastCompletedYear: 2020}))
	require.NoError(t, s.UpdateProgress(ctx, "a", 61.5, 40, 65))

	completed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkCompleted(ctx, "a", scholar.CompletionUpdate{
		TotalFound:  65,
		Processed:   52,
		Artifacts:   scholar.ArtifactPaths{CSV: "file:///tmp/results.csv"},
		PRISMA:      &scholar.PRISMAMetrics{StudiesIncluded: 52},
		CompletedAt: completed,
	}))

	job, err := s.LoadJob(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusCompleted, job.Status)
	require.Equal(t, float64(100), job.Progress)
	require.Nil(t, job.Checkpoint)
	require.Empty(t, job.ErrorMessage)
	require.Equal(t, 65, job.TotalFound)
	require.Equal(t, 52, job.ProcessedCount)
	require.Equal(t, completed, *job.CompletedAt)
	require.Equal(t, 52, job.PRISMA.StudiesIncluded)
}

func TestJobStoreListJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewJobStore()
	require.NoError(t, s.CreateJob(ctx, newJob("a")))
	require.NoError(t, s.CreateJob(ctx, newJob("b")))

	jobs, err := s.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}
