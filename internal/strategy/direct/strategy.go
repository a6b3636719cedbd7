// Package directstrategy implements the raw HTTP harvesting strategy. It
// trades speed for stealth: long randomized gaps and rotating browser
// identities on a plain http.Client.
package directstrategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

const strategyName = "direct"

// Config controls the HTTP client and pacing.
type Config struct {
	ProxyURL   string
	Timeout    time.Duration
	MinDelay   time.Duration
	MaxDelay   time.Duration
	ErrorDelay time.Duration
	UserAgents []string
	PageSize   int
	MaxOffset  int
}

// Strategy fetches result pages with net/http. A detected block aborts the
// whole strategy; other page errors wear a longer pause and advance the
// offset.
type Strategy struct {
	cfg    Config
	client *http.Client
	agents *scholar.UserAgentRotator
	retry  *scholar.ExponentialRetryPolicy
	logger *zap.Logger
}

// New builds the strategy.
func New(cfg Config, logger *zap.Logger) *Strategy {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = 5 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.ErrorDelay == 0 {
		cfg.ErrorDelay = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
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
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			logger.Warn("proxy unusable, continuing direct",
				zap.String("proxy", cfg.ProxyURL),
				zap.Error(err))
		}
	}

	return &Strategy{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		agents: scholar.NewUserAgentRotator(cfg.UserAgents),
		retry:  scholar.NewExponentialRetryPolicy(),
		logger: logger.With(zap.String("strategy", strategyName)),
	}
}

// Name identifies the strategy.
func (s *Strategy) Name() string { return strategyName }

// IsAvailable always reports true.
func (s *Strategy) IsAvailable() bool { return true }

// Search runs the year-partitioned harvest over plain HTTP.
func (s *Strategy) Search(ctx context.Context, criteria scholar.SearchCriteria, cb scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	pacer := scholar.NewPacer(s.cfg.MinDelay, s.cfg.MaxDelay)
	fetcher := scholar.PageFetcherFunc(func(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		defer pacer.Done()
		return s.fetchWithRetry(ctx, q)
	})

	cfg := scholar.PaginationConfig{
		PageSize:  s.cfg.PageSize,
		MaxOffset: s.cfg.MaxOffset,
		Logger:    s.logger,
		OnPageError: func(ctx context.Context, q scholar.PageQuery, err error) error {
			scholar.TotalPageErrors.WithLabelValues(strategyName).Inc()
			if errors.Is(err, scholar.ErrBlocked) {
				// Once this identity is burned every later page would
				// fail the same way.
				return err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Warn("page failed, cooling off",
				zap.Int("year", q.YearLow),
				zap.Int("offset", q.Offset),
				zap.Error(err))
			return scholar.Sleep(ctx, s.cfg.ErrorDelay)
		},
	}
	return scholar.Harvest(ctx, fetcher, criteria, cfg, cb)
}

func (s *Strategy) fetchWithRetry(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := s.fetchPage(ctx, q)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !s.retry.ShouldRetry(err, attempt+1) {
			return nil, lastErr
		}
		if serr := scholar.Sleep(ctx, s.retry.Backoff(attempt)); serr != nil {
			return nil, serr
		}
	}
}

func (s *Strategy) fetchPage(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scholar.SearchPageURL(q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.agents.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	scholar.TotalPagesFetched.WithLabelValues(strategyName).Inc()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
		scholar.TotalBlocks.WithLabelValues(strategyName).Inc()
		return nil, fmt.Errorf("%w: status %d", scholar.ErrBlocked, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if scholar.BlockDetected(resp.Request.URL.String(), body) {
		scholar.TotalBlocks.WithLabelValues(strategyName).Inc()
		return nil, scholar.ErrBlocked
	}
	return body, nil
}
