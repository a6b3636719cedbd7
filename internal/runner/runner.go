// Package runner executes harvesting jobs end to end: resume, search,
// semantic screening, artifact export and terminal state transitions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/export"
	"github.com/litrev/harvester/internal/scholar"
)

// Searcher is the coordinator-shaped dependency.
type Searcher interface {
	Search(ctx context.Context, criteria scholar.SearchCriteria, cb scholar.SearchCallbacks) ([]scholar.PaperRecord, error)
}

// Config tunes retry behavior.
type Config struct {
	// MaxRetries bounds automatic re-runs of a failed job.
	MaxRetries int
	// RetryBaseDelay scales linearly with the retry count.
	RetryBaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 10 * time.Second
	}
	return c
}

// Runner pulls jobs off the queue and runs them one at a time. Run several
// runners for parallelism; each job stays on a single runner.
type Runner struct {
	cfg      Config
	jobs     scholar.JobStore
	papers   scholar.PaperStore
	queue    scholar.Queue
	searcher Searcher
	scorer   scholar.Scorer
	notifier scholar.Notifier
	blobs    scholar.BlobStore
	clock    scholar.Clock
	logger   *zap.Logger

	retryWG sync.WaitGroup
}

// Deps collects the runner's collaborators. Scorer, Notifier and BlobStore
// are optional.
type Deps struct {
	Jobs     scholar.JobStore
	Papers   scholar.PaperStore
	Queue    scholar.Queue
	Searcher Searcher
	Scorer   scholar.Scorer
	Notifier scholar.Notifier
	Blobs    scholar.BlobStore
	Clock    scholar.Clock
	Logger   *zap.Logger
}

// New builds a runner.
func New(cfg Config, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg.withDefaults(),
		jobs:     deps.Jobs,
		papers:   deps.Papers,
		queue:    deps.Queue,
		searcher: deps.Searcher,
		scorer:   deps.Scorer,
		notifier: deps.Notifier,
		blobs:    deps.Blobs,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Run processes queue items until the context is canceled or the queue
// closes. Pending retry timers are drained before returning.
func (r *Runner) Run(ctx context.Context) error {
	defer r.retryWG.Wait()
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		r.processJob(ctx, item)
	}
}

func (r *Runner) processJob(ctx context.Context, item scholar.QueueItem) {
	logger := r.logger.With(zap.String("job_id", item.JobID))

	job, err := r.jobs.LoadJob(ctx, item.JobID)
	if err != nil {
		logger.Error("job load failed", zap.Error(err))
		return
	}
	switch job.Status {
	case scholar.JobStatusPending, scholar.JobStatusFailed:
	default:
		logger.Info("skipping job in non-runnable state",
			zap.String("status", string(job.Status)))
		return
	}
	if err := r.jobs.MarkRunning(ctx, job.ID, r.clock.Now()); err != nil {
		logger.Error("mark running failed", zap.Error(err))
		return
	}
	logger.Info("job started",
		zap.Int("attempt", item.Attempt))

	run := newJobRun(r, job, logger)
	records, err := r.searcher.Search(ctx, run.criteria, run.callbacks(ctx))

	switch {
	case errors.Is(err, scholar.ErrPauseRequested):
		run.pause(ctx)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-job: checkpoint so the next process resumes.
		run.checkpointOnly(logger)
	case err != nil:
		r.failAndMaybeRetry(ctx, run, item, err)
	default:
		r.complete(ctx, run, records)
	}
}

// jobRun holds the per-execution state threaded through callbacks.
type jobRun struct {
	r      *Runner
	job    *scholar.JobState
	logger *zap.Logger

	criteria scholar.SearchCriteria
	written  *scholar.TitleSet

	mu          sync.Mutex
	base        int
	accepted    int
	duplicates  int
	maxProgress float64
}

func newJobRun(r *Runner, job *scholar.JobState, logger *zap.Logger) *jobRun {
	run := &jobRun{
		r:        r,
		job:      job,
		logger:   logger,
		criteria: job.Criteria,
		written:  scholar.NewTitleSet(),
	}
	if cp := job.Checkpoint; cp != nil && run.criteria.StartYear != 0 && run.criteria.EndYear != 0 {
		resume := cp.LastCompletedYear + 1
		if resume > run.criteria.StartYear {
			run.criteria.StartYear = resume
		}
		run.base = cp.PapersCollected
		run.accepted = cp.PapersCollected
		logger.Info("resuming from checkpoint",
			zap.Int("resume_year", run.criteria.StartYear),
			zap.Int("papers_collected", cp.PapersCollected))
	}
	return run
}

func (j *jobRun) callbacks(ctx context.Context) scholar.SearchCallbacks {
	// Prime the dedup set so a resumed run never re-persists records from
	// earlier attempts.
	if existing, err := j.r.papers.ListRecords(ctx, j.job.ID); err == nil {
		for _, rec := range existing {
			j.written.MarkIfNew(rec.Title)
		}
	} else {
		j.logger.Warn("existing records unavailable", zap.Error(err))
	}

	return scholar.SearchCallbacks{
		Progress: func(accepted, estimated int) {
			j.onProgress(ctx, accepted, estimated)
		},
		Persist: func(batch []scholar.PaperRecord) error {
			return j.persistBatch(ctx, batch)
		},
		Gate: func() error {
			return j.gate(ctx)
		},
		Duplicates: func(n int) {
			j.mu.Lock()
			j.duplicates += n
			j.mu.Unlock()
			scholar.TotalDuplicatesDropped.Add(float64(n))
		},
	}
}

func (j *jobRun) onProgress(ctx context.Context, strategyAccepted, estimated int) {
	j.mu.Lock()
	total := j.base + strategyAccepted
	if total > j.accepted {
		j.accepted = total
	} else {
		total = j.accepted
	}

	progress := j.maxProgress
	if estimated > 0 {
		p := float64(total) / float64(estimated) * 100
		if p > 99 {
			p = 99
		}
		if p > progress {
			progress = p
		}
	}
	j.maxProgress = progress
	j.mu.Unlock()

	scholar.TotalRecordsAccepted.Inc()
	if err := j.r.jobs.UpdateProgress(ctx, j.job.ID, progress, total, estimated); err != nil {
		j.logger.Warn("progress update failed", zap.Error(err))
	}
}

func (j *jobRun) persistBatch(ctx context.Context, batch []scholar.PaperRecord) error {
	fresh := batch[:0:0]
	for _, rec := range batch {
		if j.written.MarkIfNew(rec.Title) {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := j.r.papers.AppendRecords(ctx, j.job.ID, fresh); err != nil {
		j.logger.Warn("incremental persist failed", zap.Error(err))
		return err
	}
	return nil
}

func (j *jobRun) gate(ctx context.Context) error {
	job, err := j.r.jobs.LoadJob(ctx, j.job.ID)
	if err != nil {
		j.logger.Warn("gate load failed", zap.Error(err))
		return nil
	}
	if job.Status == scholar.JobStatusPaused {
		return scholar.ErrPauseRequested
	}
	return nil
}

// mergeStored folds records persisted by earlier attempts into the
// current run's result set, oldest attempt first, deduplicated by
// normalized title.
func (j *jobRun) mergeStored(ctx context.Context, records []scholar.PaperRecord) []scholar.PaperRecord {
	stored, err := j.r.papers.ListRecords(ctx, j.job.ID)
	if err != nil {
		j.logger.Warn("stored records unavailable, completing with current run only",
			zap.Error(err))
		return records
	}
	if len(stored) == 0 {
		return records
	}
	seen := scholar.NewTitleSet()
	merged := make([]scholar.PaperRecord, 0, len(stored)+len(records))
	for _, rec := range stored {
		if seen.MarkIfNew(rec.Title) {
			merged = append(merged, rec)
		}
	}
	for _, rec := range records {
		if seen.MarkIfNew(rec.Title) {
			merged = append(merged, rec)
		}
	}
	return merged
}

func (j *jobRun) snapshot() (accepted, duplicates int, progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.accepted, j.duplicates, j.maxProgress
}

// estimateCheckpoint projects which year was last completed from scalar
// progress. It is deliberately conservative: over-estimating would skip
// unharvested years on resume.
func (j *jobRun) estimateCheckpoint() *scholar.Checkpoint {
	accepted, _, progress := j.snapshot()
	start, end := j.criteria.StartYear, j.criteria.EndYear
	if start == 0 || end == 0 {
		return nil
	}
	yearCount := end - start + 1
	last := start + int(progress/100*float64(yearCount)) - 1
	if last < start {
		return nil
	}
	if last > end {
		last = end
	}
	return &scholar.Checkpoint{
		LastCompletedYear: last,
		PapersCollected:   accepted,
		Timestamp:         j.r.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (j *jobRun) pause(ctx context.Context) {
	if cp := j.estimateCheckpoint(); cp != nil {
		if err := j.r.jobs.SaveCheckpoint(ctx, j.job.ID, *cp); err != nil {
			j.logger.Warn("checkpoint save failed", zap.Error(err))
		}
	}
	j.logger.Info("job paused")
}

func (j *jobRun) checkpointOnly(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cp := j.estimateCheckpoint(); cp != nil {
		if err := j.r.jobs.SaveCheckpoint(ctx, j.job.ID, *cp); err != nil {
			logger.Warn("shutdown checkpoint save failed", zap.Error(err))
		}
	}
}

func (r *Runner) failAndMaybeRetry(ctx context.Context, run *jobRun, item scholar.QueueItem, searchErr error) {
	retryCount := run.job.RetryCount + 1
	upd := scholar.FailureUpdate{
		ErrorMessage: searchErr.Error(),
		Checkpoint:   run.estimateCheckpoint(),
		RetryCount:   retryCount,
	}
	if err := r.jobs.MarkFailed(ctx, run.job.ID, upd); err != nil {
		run.logger.Error("mark failed failed", zap.Error(err))
	}
	scholar.TotalJobsCompleted.WithLabelValues("failed").Inc()
	run.logger.Warn("job failed",
		zap.Int("retry_count", retryCount),
		zap.Error(searchErr))

	if retryCount > r.cfg.MaxRetries {
		run.logger.Error("retry budget exhausted, job stays failed")
		return
	}

	delay := time.Duration(retryCount) * r.cfg.RetryBaseDelay
	r.retryWG.Add(1)
	go func() {
		defer r.retryWG.Done()
		if err := scholar.Sleep(ctx, delay); err != nil {
			return
		}
		if err := r.jobs.MarkPending(ctx, run.job.ID); err != nil {
			run.logger.Error("mark pending for retry failed", zap.Error(err))
			return
		}
		err := r.queue.Enqueue(ctx, scholar.QueueItem{
			JobID:     run.job.ID,
			Attempt:   item.Attempt + 1,
			Submitted: r.clock.Now().UnixMilli(),
		})
		if err != nil {
			run.logger.Error("retry enqueue failed", zap.Error(err))
			return
		}
		run.logger.Info("job requeued for retry",
			zap.Duration("delay", delay),
			zap.Int("attempt", item.Attempt+1))
	}()
}

func (r *Runner) complete(ctx context.Context, run *jobRun, records []scholar.PaperRecord) {
	logger := run.logger
	accepted, duplicates, _ := run.snapshot()

	// A resumed run only searched years after the checkpoint; records
	// from completed years live solely in the store.
	records = run.mergeStored(ctx, records)

	screened := len(records)
	final := records
	if r.scorer != nil && run.criteria.SemanticFilteringEnabled() {
		filtered, err := r.scorer.Filter(ctx, records,
			run.criteria.SemanticInclusion,
			run.criteria.SemanticExclusion,
			run.criteria.SemanticBatchMode)
		if err != nil {
			// Screening never discards a harvest; the records ship
			// unscored.
			logger.Warn("semantic screening failed, keeping all records", zap.Error(err))
		} else {
			final = filtered
		}
	}

	if err := r.papers.ReplaceRecords(ctx, run.job.ID, final); err != nil {
		logger.Warn("final record replace failed", zap.Error(err))
	}

	prisma := &scholar.PRISMAMetrics{
		RecordsIdentified: accepted + duplicates,
		DuplicatesRemoved: duplicates,
		RecordsScreened:   screened,
		ExcludedSemantic:  screened - len(final),
		StudiesIncluded:   len(final),
	}

	artifacts := r.exportArtifacts(ctx, run.job, *prisma, final, logger)

	upd := scholar.CompletionUpdate{
		TotalFound:  accepted,
		Processed:   len(final),
		Artifacts:   artifacts,
		PRISMA:      prisma,
		CompletedAt: r.clock.Now(),
	}
	if err := r.jobs.MarkCompleted(ctx, run.job.ID, upd); err != nil {
		logger.Error("mark completed failed", zap.Error(err))
		return
	}
	scholar.TotalJobsCompleted.WithLabelValues("completed").Inc()
	logger.Info("job completed",
		zap.Int("records", len(final)),
		zap.Int("duplicates_removed", duplicates))

	if r.notifier != nil {
		if job, err := r.jobs.LoadJob(ctx, run.job.ID); err == nil {
			if nerr := r.notifier.JobCompleted(ctx, job); nerr != nil {
				logger.Warn("completion notification failed", zap.Error(nerr))
			}
		}
	}
}

func (r *Runner) exportArtifacts(ctx context.Context, job *scholar.JobState, prisma scholar.PRISMAMetrics, records []scholar.PaperRecord, logger *zap.Logger) scholar.ArtifactPaths {
	var paths scholar.ArtifactPaths
	if r.blobs == nil {
		return paths
	}
	put := func(name, contentType string, data []byte) string {
		path, err := r.blobs.PutObject(ctx, fmt.Sprintf("jobs/%s/%s", job.ID, name), contentType, data)
		if err != nil {
			logger.Warn("artifact write failed",
				zap.String("artifact", name),
				zap.Error(err))
			return ""
		}
		return path
	}

	if data, err := export.CSV(records); err == nil {
		paths.CSV = put("results.csv", "text/csv", data)
	} else {
		logger.Warn("csv render failed", zap.Error(err))
	}
	paths.BibTeX = put("references.bib", "application/x-bibtex", export.BibTeX(records))
	paths.PRISMADiagram = put("prisma.svg", "image/svg+xml", export.PRISMADiagram(prisma))

	date := r.clock.Now().UTC().Format("2006-01-02")
	if data, err := export.LaTeX(job.Name, date, prisma, records); err == nil {
		paths.LaTeX = put("summary.tex", "application/x-tex", data)
	} else {
		logger.Warn("latex render failed", zap.Error(err))
	}
	return paths
}
