// Package collystrategy implements the library-backed harvesting strategy
// using gocolly.
package collystrategy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

const strategyName = "colly"

// Config controls collector behavior.
type Config struct {
	ProxyURL   string
	Timeout    time.Duration
	MinDelay   time.Duration
	MaxDelay   time.Duration
	UserAgents []string
	PageSize   int
	MaxOffset  int
}

// Strategy is the first-choice harvester. It is the cheapest to run and the
// easiest to block, so the coordinator places it ahead of the heavier ones.
type Strategy struct {
	cfg           Config
	baseCollector *colly.Collector
	agents        *scholar.UserAgentRotator
	logger        *zap.Logger
}

// New builds the strategy. An unusable proxy URL degrades to a direct
// connection rather than failing construction.
func New(cfg Config, logger *zap.Logger) *Strategy {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.ProxyURL != "" {
		if err := c.SetProxy(cfg.ProxyURL); err != nil {
			logger.Warn("proxy unusable, continuing direct",
				zap.String("proxy", cfg.ProxyURL),
				zap.Error(err))
		}
	}

	return &Strategy{
		cfg:           cfg,
		baseCollector: c,
		agents:        scholar.NewUserAgentRotator(cfg.UserAgents),
		logger:        logger.With(zap.String("strategy", strategyName)),
	}
}

// Name identifies the strategy.
func (s *Strategy) Name() string { return strategyName }

// IsAvailable always reports true; colly needs nothing beyond the process.
func (s *Strategy) IsAvailable() bool { return true }

// Search runs the year-partitioned harvest through a colly collector with a
// one to two second gap between pages. Page errors skip the remainder of
// the year partition.
func (s *Strategy) Search(ctx context.Context, criteria scholar.SearchCriteria, cb scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	pacer := scholar.NewPacer(s.cfg.MinDelay, s.cfg.MaxDelay)
	fetcher := scholar.PageFetcherFunc(func(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		defer pacer.Done()
		return s.fetchPage(ctx, q)
	})

	cfg := scholar.PaginationConfig{
		PageSize:  s.cfg.PageSize,
		MaxOffset: s.cfg.MaxOffset,
		Logger:    s.logger,
		OnPageError: func(_ context.Context, q scholar.PageQuery, err error) error {
			scholar.TotalPageErrors.WithLabelValues(strategyName).Inc()
			s.logger.Warn("page failed, abandoning year",
				zap.Int("year", q.YearLow),
				zap.Int("offset", q.Offset),
				zap.Error(err))
			return scholar.ErrSkipYear
		},
	}
	return scholar.Harvest(ctx, fetcher, criteria, cfg, cb)
}

func (s *Strategy) fetchPage(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
	collector := s.baseCollector.Clone()
	collector.UserAgent = s.agents.Next()

	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	pageURL := scholar.SearchPageURL(q)
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
	}

	scholar.TotalPagesFetched.WithLabelValues(strategyName).Inc()
	if scholar.BlockDetected(finalURL, body) {
		scholar.TotalBlocks.WithLabelValues(strategyName).Inc()
		return nil, scholar.ErrBlocked
	}
	return body, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
