package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	queuemem "github.com/litrev/harvester/internal/queue/memory"
	"github.com/litrev/harvester/internal/runner"
	"github.com/litrev/harvester/internal/scholar"
	storemem "github.com/litrev/harvester/internal/storage/memory"
)

type stubSearcher struct{}

func (s *stubSearcher) Search(_ context.Context, _ scholar.SearchCriteria, _ scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	return []scholar.PaperRecord{{Title: "result"}}, nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1750000000, 0).UTC() }

func newTestRunner(queue scholar.Queue, jobs scholar.JobStore, papers scholar.PaperStore) *runner.Runner {
	return runner.New(runner.Config{}, runner.Deps{
		Jobs:     jobs,
		Papers:   papers,
		Queue:    queue,
		Searcher: &stubSearcher{},
		Clock:    fixedClock{},
		Logger:   zap.NewNop(),
	})
}

func TestDispatcherRunsJobsAcrossRunners(t *testing.T) {
	t.Parallel()

	queue := queuemem.NewQueue(8)
	jobs := storemem.NewJobStore()
	papers := storemem.NewPaperStore()

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, jobs.CreateJob(context.Background(), &scholar.JobState{
			ID:       id,
			Status:   scholar.JobStatusPending,
			Criteria: scholar.SearchCriteria{IncludeKeywords: []string{"coral"}},
		}))
	}

	d := New(queue, []*runner.Runner{
		newTestRunner(queue, jobs, papers),
		newTestRunner(queue, jobs, papers),
	})

	for _, id := range []string{"job-1", "job-2", "job-3"} {
		require.NoError(t, d.Enqueue(context.Background(), scholar.QueueItem{JobID: id, Attempt: 1}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		all, err := jobs.ListJobs(context.Background())
		if err != nil {
			return false
		}
		for _, job := range all {
			if job.Status != scholar.JobStatusCompleted {
				return false
			}
		}
		return len(all) == 3
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestDispatcherEnqueueWrapsQueueError(t *testing.T) {
	t.Parallel()

	d := New(failingQueue{}, nil)
	err := d.Enqueue(context.Background(), scholar.QueueItem{JobID: "job-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue enqueue")
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, scholar.QueueItem) error {
	return errors.New("full")
}

func (failingQueue) Dequeue(context.Context) (scholar.QueueItem, error) {
	return scholar.QueueItem{}, errors.New("empty")
}

func (failingQueue) Close() error { return nil }
