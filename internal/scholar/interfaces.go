package scholar

import (
	"context"
	"time"
)

// Strategy is one way of harvesting result pages. Implementations must be
// safe for sequential reuse across jobs but are never called concurrently
// for the same job.
type Strategy interface {
	// Name identifies the strategy in logs, stats and configuration.
	Name() string

	// IsAvailable reports whether the strategy can run in this process
	// (binaries present, network stack usable). Unavailable strategies
	// are skipped by the coordinator without counting as failures.
	IsAvailable() bool

	// Search runs the full year-partitioned harvest for the criteria.
	// It returns the records accepted so far even on error so partial
	// progress survives a failover.
	Search(ctx context.Context, criteria SearchCriteria, cb SearchCallbacks) ([]PaperRecord, error)
}

// PageFetcher fetches a single raw result page. The pagination loop drives
// it; strategies supply the transport.
type PageFetcher interface {
	FetchPage(ctx context.Context, q PageQuery) ([]byte, error)
}

// PageFetcherFunc adapts a function to the PageFetcher interface.
type PageFetcherFunc func(ctx context.Context, q PageQuery) ([]byte, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, q PageQuery) ([]byte, error) {
	return f(ctx, q)
}

// JobStore persists job lifecycle state.
type JobStore interface {
	CreateJob(ctx context.Context, job *JobState) error
	LoadJob(ctx context.Context, jobID string) (*JobState, error)
	ListJobs(ctx context.Context) ([]*JobState, error)
	DeleteJob(ctx context.Context, jobID string) error

	MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error
	MarkPaused(ctx context.Context, jobID string) error
	MarkPending(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, upd CompletionUpdate) error
	MarkFailed(ctx context.Context, jobID string, upd FailureUpdate) error

	UpdateProgress(ctx context.Context, jobID string, progress float64, processed, totalFound int) error
	SaveCheckpoint(ctx context.Context, jobID string, cp Checkpoint) error
}

// PaperStore persists harvested records per job.
type PaperStore interface {
	AppendRecords(ctx context.Context, jobID string, batch []PaperRecord) error
	// ReplaceRecords swaps the job's stored set for the final filtered
	// and scored records when a job completes.
	ReplaceRecords(ctx context.Context, jobID string, records []PaperRecord) error
	ListRecords(ctx context.Context, jobID string) ([]PaperRecord, error)
}

// Scorer applies semantic relevance filtering to a completed harvest.
type Scorer interface {
	Filter(ctx context.Context, records []PaperRecord, inclusion, exclusion string, batchMode bool) ([]PaperRecord, error)
}

// Notifier announces terminal job transitions. Failures are logged and
// never affect job state.
type Notifier interface {
	JobCompleted(ctx context.Context, job *JobState) error
}

// BlobStore writes export artifacts and returns a stable path or URL.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Queue hands submitted jobs to runners.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
	Close() error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
