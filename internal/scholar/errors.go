package scholar

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across strategies and the runner.
var (
	// ErrBlocked indicates the upstream site served a captcha or block
	// page. Strategies must surface it unchanged so the coordinator can
	// fail over.
	ErrBlocked = errors.New("blocked by upstream")

	// ErrAllStrategiesFailed is returned by the coordinator when every
	// available strategy was exhausted without producing records.
	ErrAllStrategiesFailed = errors.New("all strategies failed")

	// ErrPauseRequested aborts a search because an operator paused the job.
	// It is not a failure: the runner checkpoints and parks the job.
	ErrPauseRequested = errors.New("pause requested")

	// ErrSkipYear tells the pagination loop to abandon the current year
	// partition and continue with the next one.
	ErrSkipYear = errors.New("skip current year partition")

	// ErrJobNotFound is returned by job stores for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// StrategyError wraps a failure with the strategy that produced it.
type StrategyError struct {
	Strategy string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}
