// Package headless implements the browser-backed harvesting strategy using
// chromedp. It is the slowest and most resilient option, reserved for runs
// where the lighter strategies are blocked.
package headless

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/scholar"
)

const strategyName = "browser"

// CircuitRotator requests a fresh proxy identity, typically a Tor NEWNYM.
type CircuitRotator interface {
	NewCircuit(ctx context.Context) error
}

// Config controls the headless browser.
type Config struct {
	// ProxyServer is passed to the browser, e.g. socks5://127.0.0.1:9050.
	ProxyServer       string
	NavigationTimeout time.Duration
	MinDelay          time.Duration
	MaxDelay          time.Duration
	// BlockDelay is the wait after a circuit rotation before retrying a
	// blocked page.
	BlockDelay time.Duration
	ErrorDelay time.Duration
	UserAgents []string
	PageSize   int
	MaxOffset  int
	// RotateEvery bounds the request count between circuit rotations.
	RotateEveryMin int
	RotateEveryMax int
}

// Strategy drives a real browser through result pages. A block triggers a
// circuit rotation and a single in-place retry instead of failover.
type Strategy struct {
	cfg     Config
	rotator CircuitRotator
	shots   *SnapshotKeeper
	agents  *scholar.UserAgentRotator
	logger  *zap.Logger

	// navigate drives one tab to one page. Tests swap it out.
	navigate func(ctx, allocCtx context.Context, q scholar.PageQuery) ([]byte, error)
}

// New builds the strategy. rotator may be nil when no rotating proxy is
// configured; blocks then fail over like any other strategy.
func New(cfg Config, rotator CircuitRotator, shots *SnapshotKeeper, logger *zap.Logger) *Strategy {
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = 8 * time.Second
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 15 * time.Second
	}
	if cfg.BlockDelay == 0 {
		cfg.BlockDelay = 60 * time.Second
	}
	if cfg.ErrorDelay == 0 {
		cfg.ErrorDelay = 10 * time.Second
	}
	if cfg.RotateEveryMin == 0 {
		cfg.RotateEveryMin = 10
	}
	if cfg.RotateEveryMax == 0 {
		cfg.RotateEveryMax = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Strategy{
		cfg:     cfg,
		rotator: rotator,
		shots:   shots,
		agents:  scholar.NewUserAgentRotator(cfg.UserAgents),
		logger:  logger.With(zap.String("strategy", strategyName)),
	}
	s.navigate = s.navigateTab
	return s
}

// Name identifies the strategy.
func (s *Strategy) Name() string { return strategyName }

// IsAvailable reports whether a chrome binary is on the path.
func (s *Strategy) IsAvailable() bool {
	for _, bin := range []string{"google-chrome", "chromium", "chromium-browser", "chrome", "headless-shell"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	return false
}

// Search runs the year-partitioned harvest, one browser process per run and
// one tab per page.
func (s *Strategy) Search(ctx context.Context, criteria scholar.SearchCriteria, cb scholar.SearchCallbacks) ([]scholar.PaperRecord, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if s.cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(s.cfg.ProxyServer))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	pacer := scholar.NewPacer(s.cfg.MinDelay, s.cfg.MaxDelay)
	schedule := scholar.NewRotationSchedule(s.cfg.RotateEveryMin, s.cfg.RotateEveryMax)
	fetcher := scholar.PageFetcherFunc(func(ctx context.Context, q scholar.PageQuery) ([]byte, error) {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		defer pacer.Done()
		return s.fetchPage(ctx, allocCtx, schedule, q)
	})

	cfg := scholar.PaginationConfig{
		PageSize:  s.cfg.PageSize,
		MaxOffset: s.cfg.MaxOffset,
		Logger:    s.logger,
		OnPageError: func(ctx context.Context, q scholar.PageQuery, err error) error {
			scholar.TotalPageErrors.WithLabelValues(strategyName).Inc()
			if errors.Is(err, scholar.ErrBlocked) {
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

// fetchPage navigates one tab to the result page. A block gets one recovery
// attempt: rotate the circuit, wait out the cooldown, retry.
func (s *Strategy) fetchPage(ctx, allocCtx context.Context, schedule *scholar.RotationSchedule, q scholar.PageQuery) ([]byte, error) {
	if schedule.Due() {
		s.rotateCircuit(ctx)
	}

	body, err := s.navigate(ctx, allocCtx, q)
	if !errors.Is(err, scholar.ErrBlocked) {
		return body, err
	}
	if s.rotator == nil {
		return nil, err
	}
	s.logger.Info("blocked, rotating circuit and retrying",
		zap.Int("year", q.YearLow),
		zap.Int("offset", q.Offset))
	s.rotateCircuit(ctx)
	if serr := scholar.Sleep(ctx, s.cfg.BlockDelay); serr != nil {
		return nil, serr
	}
	return s.navigate(ctx, allocCtx, q)
}

func (s *Strategy) navigateTab(ctx, allocCtx context.Context, q scholar.PageQuery) ([]byte, error) {
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)
	defer cancel()

	// Tie tab lifetime to the caller.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	var (
		html     string
		finalURL string
		shot     []byte
	)
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(s.agents.Next()).Do(ctx)
		}),
		chromedp.Navigate(scholar.SearchPageURL(q)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&shot),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if s.shots != nil {
		s.shots.Keep(q.JobID, shot)
	}

	scholar.TotalPagesFetched.WithLabelValues(strategyName).Inc()
	body := []byte(html)
	if scholar.BlockDetected(finalURL, body) {
		scholar.TotalBlocks.WithLabelValues(strategyName).Inc()
		return nil, scholar.ErrBlocked
	}
	return body, nil
}

func (s *Strategy) rotateCircuit(ctx context.Context) {
	if s.rotator == nil {
		return
	}
	scholar.TotalCircuitRotations.Inc()
	if err := s.rotator.NewCircuit(ctx); err != nil {
		s.logger.Warn("circuit rotation failed", zap.Error(err))
	}
}
