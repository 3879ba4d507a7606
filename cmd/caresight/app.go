package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/scrypster/caresight/internal/config"
	"github.com/scrypster/caresight/internal/engine"
	"github.com/scrypster/caresight/internal/llm"
	"github.com/scrypster/caresight/internal/logging"
	"github.com/scrypster/caresight/internal/metrics"
	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/internal/storage/postgres"
	"github.com/scrypster/caresight/internal/storage/sqlite"
)

// backend is a store that serves both records and summaries.
type backend interface {
	storage.RecordStore
	storage.SummaryStore
}

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     backend
	summaries *storage.CachedSummaryStore
	cache     *engine.RecordCache
	rules     *engine.RuleSet
	retriever *engine.Retriever
	scanner   *engine.CorrelationScanner

	// set by withGenerator
	generator  *llm.GuardedGenerator
	summarizer *engine.Summarizer
	postSync   *engine.PostSyncRunner
}

// loadConfig reads .env and the environment, then initializes logging.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := logging.Init(cfg.Logging.Environment, cfg.Logging.Level)
	return cfg, logger, nil
}

// newApp opens the store and builds the retrieval and correlation components.
func newApp() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	rules, err := loadRules(rulesPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cache := engine.NewRecordCache(store, engine.RecordCacheConfig{
		TTL:          cfg.Cache.RecordTTL,
		MaxFetch:     cfg.Cache.MaxFetch,
		FetchTimeout: cfg.Cache.FetchTimeout,
		Logger:       logger,
		Metrics:      m,
	})

	detector := engine.NewCorrelationDetector(engine.TierConfig{
		High:      cfg.Correlation.HighThreshold,
		Medium:    cfg.Correlation.MediumThreshold,
		MinEvents: cfg.Correlation.MinEvents,
	})
	scanner := engine.NewCorrelationScanner(store, detector,
		engine.DefaultCorrelationQueries(rules, cfg.Correlation.LagWindowDays),
		engine.DefaultThresholdScans(), cfg.Summary.MaxRecords)

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   m,
		store:     store,
		summaries: storage.NewCachedSummaryStore(store, cfg.Cache.SummaryCacheTTL),
		cache:     cache,
		rules:     rules,
		retriever: engine.NewRetriever(cache, rules, logger, m),
		scanner:   scanner,
	}, nil
}

// withGenerator builds the AI client, summarizer and post-sync runner.
func (a *app) withGenerator(ctx context.Context) error {
	gen, err := llm.NewTextGenerator(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return fmt.Errorf("init text generator: %w", err)
	}
	a.generator = gen
	a.summarizer = engine.NewSummarizer(a.store, a.summaries, gen, a.scanner, engine.SummarizerConfig{
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	a.postSync = engine.NewPostSyncRunner(a.cache, a.summarizer, a.store, a.logger)
	return nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("caresight: store close failed", "error", err)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath(), sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}

func loadRules(path string) (*engine.RuleSet, error) {
	if path == "" {
		return engine.DefaultRuleSet()
	}
	return engine.LoadRuleSet(path)
}
