// Package main wires together the harvester service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/litrev/harvester/internal/api"
	"github.com/litrev/harvester/internal/clock/system"
	"github.com/litrev/harvester/internal/config"
	"github.com/litrev/harvester/internal/dispatcher"
	"github.com/litrev/harvester/internal/id/uuid"
	"github.com/litrev/harvester/internal/logging"
	"github.com/litrev/harvester/internal/notify"
	"github.com/litrev/harvester/internal/proxy/tor"
	pubsubpublisher "github.com/litrev/harvester/internal/publisher/pubsub"
	queuememory "github.com/litrev/harvester/internal/queue/memory"
	"github.com/litrev/harvester/internal/runner"
	"github.com/litrev/harvester/internal/scholar"
	"github.com/litrev/harvester/internal/semantic"
	"github.com/litrev/harvester/internal/storage/gcs"
	"github.com/litrev/harvester/internal/storage/local"
	storagememory "github.com/litrev/harvester/internal/storage/memory"
	"github.com/litrev/harvester/internal/storage/postgres"
	"github.com/litrev/harvester/internal/strategy"
	collystrategy "github.com/litrev/harvester/internal/strategy/colly"
	directstrategy "github.com/litrev/harvester/internal/strategy/direct"
	"github.com/litrev/harvester/internal/strategy/headless"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, papers, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer closeStores()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	queue := queuememory.NewQueue(cfg.Harvest.QueueDepth)
	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	coordinator := strategy.NewCoordinator(
		buildStrategies(cfg, logger), cfg.Cooldown(), logger.Named("coordinator"))

	var scorer scholar.Scorer
	if cfg.Semantic.APIKey != "" {
		client, err := semantic.NewOpenAIClient(cfg.Semantic.APIKey, cfg.Semantic.Model)
		if err != nil {
			logger.Fatal("semantic client init failed", zap.Error(err))
		}
		scorer = semantic.New(client, semantic.Config{
			BatchSize: cfg.Semantic.BatchSize,
			Threshold: cfg.Semantic.Threshold,
		}, logger.Named("semantic"))
	}

	notifier, closeNotify, err := buildNotifier(ctx, cfg)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}
	defer closeNotify()

	runnerCfg := runner.Config{
		MaxRetries:     cfg.Harvest.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay(),
	}
	var runners []*runner.Runner
	for i := 0; i < cfg.Harvest.Concurrency; i++ {
		runners = append(runners, runner.New(runnerCfg, runner.Deps{
			Jobs:     jobs,
			Papers:   papers,
			Queue:    queue,
			Searcher: coordinator,
			Scorer:   scorer,
			Notifier: notifier,
			Blobs:    blobs,
			Clock:    clock,
			Logger:   logger.Named("runner").With(zap.Int("index", i)),
		}))
	}
	dispatch := dispatcher.New(queue, runners)

	apiServer := api.NewServer(jobs, papers, dispatch, idGen, clock, logger.Named("api"), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started",
			zap.Int("runners", cfg.Harvest.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	_ = queue.Close()
	logger.Info("shutdown complete")
}

func buildStores(ctx context.Context, cfg config.Config) (scholar.JobStore, scholar.PaperStore, func(), error) {
	if cfg.DB.DSN == "" {
		return storagememory.NewJobStore(), storagememory.NewPaperStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	jobs, err := postgres.NewJobStore(pool, cfg.DB.JobsTable)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	papers, err := postgres.NewPaperStore(pool, cfg.DB.PapersTable)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return jobs, papers, pool.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scholar.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	default:
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	}
}

func buildStrategies(cfg config.Config, logger *zap.Logger) []scholar.Strategy {
	var rotator headless.CircuitRotator
	if cfg.Proxy.ControlAddr != "" {
		rotator = tor.NewController(tor.Config{
			ControlAddr: cfg.Proxy.ControlAddr,
			Password:    cfg.Proxy.ControlPassword,
		}, logger.Named("tor"))
	}
	shots := headless.NewSnapshotKeeper(cfg.Harvest.ScreenshotDir, logger.Named("snapshots"))

	var strategies []scholar.Strategy
	for _, name := range cfg.Harvest.Strategies {
		switch name {
		case "colly":
			strategies = append(strategies, collystrategy.New(collystrategy.Config{
				ProxyURL:   cfg.Proxy.URL,
				UserAgents: cfg.Harvest.UserAgents,
				PageSize:   cfg.Harvest.PageSize,
				MaxOffset:  cfg.Harvest.MaxOffset,
			}, logger))
		case "direct":
			strategies = append(strategies, directstrategy.New(directstrategy.Config{
				ProxyURL:   cfg.Proxy.URL,
				UserAgents: cfg.Harvest.UserAgents,
				PageSize:   cfg.Harvest.PageSize,
				MaxOffset:  cfg.Harvest.MaxOffset,
			}, logger))
		case "browser":
			strategies = append(strategies, headless.New(headless.Config{
				ProxyServer: cfg.Proxy.URL,
				UserAgents:  cfg.Harvest.UserAgents,
				PageSize:    cfg.Harvest.PageSize,
				MaxOffset:   cfg.Harvest.MaxOffset,
			}, rotator, shots, logger))
		}
	}
	return strategies
}

func buildNotifier(ctx context.Context, cfg config.Config) (scholar.Notifier, func(), error) {
	var notifiers notify.Multi
	closeFn := func() {}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.PubSub.TopicName)
		notifiers = append(notifiers,
			notify.NewPublisherNotifier(pubsubpublisher.New(topic), cfg.PubSub.TopicName))
		closeFn = func() {
			topic.Stop()
			_ = client.Close()
		}
	}
	if cfg.SMTP.Host != "" {
		mailer, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			To:       cfg.SMTP.To,
		})
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, mailer)
	}
	if len(notifiers) == 0 {
		return nil, closeFn, nil
	}
	return notifiers, closeFn, nil
}
