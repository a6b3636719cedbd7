// Package strategy implements the harvesting strategies and the failover
// coordinator that chains them.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

// DefaultCooldown is the pause between a failed strategy and the next one.
const DefaultCooldown = 10 * time.Second

// Coordinator tries strategies in priority order until one produces
// records. An available strategy that errors or comes back empty counts as
// a failure and triggers failover after a cooldown.
type Coordinator struct {
	strategies []scholar.Strategy
	cooldown   time.Duration
	logger     *zap.Logger

	mu    sync.Mutex
	stats map[string]scholar.StrategyStats
}

// NewCoordinator builds a coordinator over the given strategies in priority
// order. A non-positive cooldown falls back to DefaultCooldown.
func NewCoordinator(strategies []scholar.Strategy, cooldown time.Duration, logger *zap.Logger) *Coordinator {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		strategies: strategies,
		cooldown:   cooldown,
		logger:     logger,
		stats:      make(map[string]scholar.StrategyStats),
	}
}

// Search runs the harvest, failing over between strategies. A pause request
// or context cancellation propagates immediately without failover.
func (c *Coordinator) Search(ctx context.Context, criteria scholar.SearchCriteria, cb scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	var lastErr error
	attempted := 0
	for i, s := range c.strategies {
		if !s.IsAvailable() {
			c.logger.Info("strategy unavailable, skipping",
				zap.String("strategy", s.Name()))
			continue
		}
		if attempted > 0 {
			if err := scholar.Sleep(ctx, c.cooldown); err != nil {
				return nil, err
			}
		}
		attempted++

		c.logger.Info("trying strategy",
			zap.String("strategy", s.Name()),
			zap.Int("priority", i))
		records, err := s.Search(ctx, criteria, cb)
		if err != nil {
			if errors.Is(err, scholar.ErrPauseRequested) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return records, err
			}
			c.recordFailure(s.Name())
			lastErr = &scholar.StrategyError{Strategy: s.Name(), Err: err}
			c.logger.Warn("strategy failed",
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		if len(records) == 0 {
			// An empty result from a working strategy usually means a
			// soft block or parser miss, so the next one gets a turn.
			c.recordFailure(s.Name())
			lastErr = &scholar.StrategyError{Strategy: s.Name(), Err: errors.New("no records returned")}
			c.logger.Warn("strategy returned no records",
				zap.String("strategy", s.Name()))
			continue
		}
		c.recordSuccess(s.Name())
		return records, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", scholar.ErrAllStrategiesFailed, lastErr)
	}
	return nil, scholar.ErrAllStrategiesFailed
}

// Stats returns a snapshot of the per-strategy counters.
func (c *Coordinator) Stats() map[string]scholar.StrategyStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]scholar.StrategyStats, len(c.stats))
	for name, s := range c.stats {
		out[name] = s
	}
	return out
}

func (c *Coordinator) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[name]
	s.SuccessCount++
	c.stats[name] = s
}

func (c *Coordinator) recordFailure(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[name]
	s.FailureCount++
	c.stats[name] = s
}
