// Package scholar defines core types shared across the harvesting subsystems.
package scholar

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a harvesting job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// PaperRecord is one harvested bibliographic entry. Records are append-only:
// once a job completes they are never mutated.
type PaperRecord struct {
	Title     string `json:"title"`
	Authors   string `json:"authors,omitempty"`
	Year      int    `json:"year,omitempty"`
	Abstract  string `json:"abstract,omitempty"`
	Source    string `json:"source,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Citations int    `json:"citations"`
	URL       string `json:"url,omitempty"`

	// SemanticScore is set only after semantic filtering; nil means the
	// record was never filtered.
	SemanticScore *int `json:"semantic_score,omitempty"`
}

// NormalizedTitle returns the dedup key for the record.
func (p PaperRecord) NormalizedTitle() string {
	return NormalizeTitle(p.Title)
}

// NormalizeTitle lowercases and trims a title for per-job uniqueness checks.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// SearchCriteria is the immutable input to a harvesting run.
type SearchCriteria struct {
	IncludeKeywords   []string `json:"include_keywords"`
	ExcludeKeywords   []string `json:"exclude_keywords,omitempty"`
	StartYear         int      `json:"start_year,omitempty"`
	EndYear           int      `json:"end_year,omitempty"`
	MaxResults        int      `json:"max_results,omitempty"`
	SemanticInclusion string   `json:"semantic_inclusion,omitempty"`
	SemanticExclusion string   `json:"semantic_exclusion,omitempty"`
	SemanticBatchMode bool     `json:"semantic_batch_mode"`
}

// Validate enforces the criteria invariants.
func (c SearchCriteria) Validate() error {
	keywords := 0
	for _, kw := range c.IncludeKeywords {
		if strings.TrimSpace(kw) != "" {
			keywords++
		}
	}
	if keywords == 0 {
		return fmt.Errorf("at least one include keyword is required")
	}
	if c.StartYear != 0 && c.EndYear != 0 && c.StartYear > c.EndYear {
		return fmt.Errorf("start_year %d is after end_year %d", c.StartYear, c.EndYear)
	}
	if c.MaxResults < 0 {
		return fmt.Errorf("max_results must be positive")
	}
	return nil
}

// Years returns the inclusive per-year partition when both bounds are set,
// or nil for a single unpartitioned sub-search.
func (c SearchCriteria) Years() []int {
	if c.StartYear == 0 || c.EndYear == 0 {
		return nil
	}
	years := make([]int, 0, c.EndYear-c.StartYear+1)
	for y := c.StartYear; y <= c.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// SemanticFilteringEnabled reports whether a scorer pass is configured.
func (c SearchCriteria) SemanticFilteringEnabled() bool {
	return strings.TrimSpace(c.SemanticInclusion) != "" || strings.TrimSpace(c.SemanticExclusion) != ""
}

// Checkpoint marks partial year-partitioned progress so a failed or paused
// job can resume without repeating completed years.
type Checkpoint struct {
	LastCompletedYear int    `json:"last_completed_year"`
	PapersCollected   int    `json:"papers_collected"`
	Timestamp         string `json:"timestamp"`
}

// ArtifactPaths records where exported artifacts were written.
type ArtifactPaths struct {
	CSV           string `json:"csv,omitempty"`
	BibTeX        string `json:"bibtex,omitempty"`
	PRISMADiagram string `json:"prisma_diagram,omitempty"`
	LaTeX         string `json:"latex,omitempty"`
}

// PRISMAMetrics tracks systematic-review stage counts. This is a reporting
// layer on top of harvesting, populated when a job completes.
type PRISMAMetrics struct {
	RecordsIdentified int `json:"records_identified"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	RecordsScreened   int `json:"records_screened"`
	ExcludedSemantic  int `json:"excluded_semantic"`
	StudiesIncluded   int `json:"studies_included"`
}

// JobState is the mutable execution record for one harvesting run.
type JobState struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Criteria       SearchCriteria `json:"criteria"`
	Status         JobStatus      `json:"status"`
	StatusMessage  string         `json:"status_message,omitempty"`
	Progress       float64        `json:"progress"`
	TotalFound     int            `json:"total_found"`
	ProcessedCount int            `json:"processed_count"`
	Checkpoint     *Checkpoint    `json:"checkpoint,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	RetryCount     int            `json:"retry_count"`
	Artifacts      ArtifactPaths  `json:"artifacts"`
	PRISMA         *PRISMAMetrics `json:"prisma_metrics,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// CompletionUpdate carries the terminal success state for a job.
type CompletionUpdate struct {
	TotalFound  int
	Processed   int
	Artifacts   ArtifactPaths
	PRISMA      *PRISMAMetrics
	CompletedAt time.Time
}

// FailureUpdate carries the failure state for a job. Checkpoint may be nil
// when the run was not year-partitioned or made no progress.
type FailureUpdate struct {
	ErrorMessage string
	Checkpoint   *Checkpoint
	RetryCount   int
}

// StrategyStats tracks per-strategy attempt counters. They exist for
// observability and ordering heuristics only and are never persisted.
type StrategyStats struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// SuccessRate returns the observed success ratio, defaulting to 1.0 when the
// strategy has never been tried.
func (s StrategyStats) SuccessRate() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(s.SuccessCount) / float64(total)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Attempt   int
	Submitted int64
}

// PageQuery captures everything needed to fetch one page of results.
type PageQuery struct {
	JobID    string
	Query    string
	Offset   int
	YearLow  int
	YearHigh int
}

// ProgressFunc receives the accepted-record count and a rough total estimate
// after every accepted record.
type ProgressFunc func(accepted, estimatedTotal int)

// PersistFunc receives each newly accepted batch for incremental persistence.
type PersistFunc func(batch []PaperRecord) error

// SearchCallbacks bundles the per-search observation hooks. All fields are
// optional; nil callbacks are skipped.
type SearchCallbacks struct {
	Progress ProgressFunc
	Persist  PersistFunc

	// Gate is consulted before each page fetch. A non-nil return stops the
	// search without interrupting an in-flight fetch; ErrPauseRequested is
	// the expected value for externally requested pauses.
	Gate func() error

	// Duplicates receives the number of parsed records dropped as
	// duplicates on each page.
	Duplicates func(n int)
}

func (cb SearchCallbacks) reportProgress(accepted, estimated int) {
	if cb.Progress != nil {
		cb.Progress(accepted, estimated)
	}
}

func (cb SearchCallbacks) reportDuplicates(n int) {
	if cb.Duplicates != nil && n > 0 {
		cb.Duplicates(n)
	}
}

func (cb SearchCallbacks) checkGate() error {
	if cb.Gate == nil {
		return nil
	}
	return cb.Gate()
}
