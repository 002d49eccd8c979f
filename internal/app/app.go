package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"RivalScanner/internal/api"
	"RivalScanner/internal/config"
	"RivalScanner/internal/domain"
	"RivalScanner/internal/infrastructure/discovery"
	"RivalScanner/internal/infrastructure/lease"
	"RivalScanner/internal/infrastructure/llm"
	"RivalScanner/internal/infrastructure/scheduler"
	"RivalScanner/internal/infrastructure/search"
	"RivalScanner/internal/infrastructure/storage/rest"
	"RivalScanner/internal/infrastructure/storage/sqlite"
	"RivalScanner/internal/infrastructure/telegram"
	"RivalScanner/internal/logging"
	"RivalScanner/internal/normalize"
	"RivalScanner/internal/ports"
	"RivalScanner/internal/provider"
	"RivalScanner/internal/usecase"
)

const storeTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	store        ports.Store
	orchestrator *usecase.Orchestrator
	sweeper      *usecase.Sweeper
	closers      []func() error
}

// New builds every adapter from cfg. The config must already be valid.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	analyzer, err := newAnalyzer(cfg.Analysis)
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	normalizer := normalize.New(baseLogger.With("component", "normalizer"))
	perplexity := discovery.NewPerplexity(
		llm.NewChatCompletionClient(llm.ChatConfig{
			Endpoint: cfg.Discovery.Endpoint,
			Model:    cfg.Discovery.Model,
			APIKey:   cfg.Discovery.APIKey,
			Timeout:  cfg.Discovery.Timeout,
		}),
		normalizer,
		baseLogger.With("component", "discovery.perplexity"),
	)

	registry := provider.NewRegistry()
	registry.Register(perplexity)
	searchClient := search.NewClient(cfg.Discovery.Timeout, cfg.Discovery.CallDelay)
	if cfg.Search.BraveAPIKey != "" {
		registry.Register(search.NewBrave(searchClient, cfg.Search.BraveEndpoint, cfg.Search.BraveAPIKey, baseLogger.With("component", "search.brave")))
	}
	if cfg.Search.NewsAPIKey != "" {
		registry.Register(search.NewNewsAPI(searchClient, cfg.Search.NewsAPIEndpoint, cfg.Search.NewsAPIKey, baseLogger.With("component", "search.newsapi")))
	}
	if _, missing := registry.Ordered(cfg.Discovery.NewsSources); len(missing) > 0 {
		baseLogger.Info("news sources without credentials are skipped", "sources", missing)
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Enabled() {
		notifier = tg
	}

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Competitors: perplexity,
		News:        discovery.NewNewsChain(registry, cfg.Discovery.NewsSources, baseLogger),
		Analyzer:    analyzer,
		Store:       store,
		Locker:      locker,
		Notifier:    notifier,
		Normalizer:  normalizer,
		Logger:      baseLogger,
	}, usecase.OrchestratorConfig{
		CompetitorLimit:     cfg.Discovery.CompetitorLimit,
		NewsLimit:           cfg.Discovery.NewsLimit,
		MaxTokens:           cfg.Analysis.MaxTokens,
		Temperature:         cfg.Analysis.Temperature,
		DiscoveryDelay:      cfg.Discovery.CallDelay,
		AnalysisDelay:       cfg.Analysis.CallDelay,
		LeaseTTL:            cfg.Lease.TTL,
		DefaultUserID:       cfg.Tenant.FallbackUserID,
		FallbackCompetitors: cfg.Discovery.FallbackCompetitors,
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger)
	a.sweeper = usecase.NewSweeper(driver, a.orchestrator, usecase.SweeperConfig{
		StuckAfter:     cfg.Scheduler.StuckAfter,
		RefreshTimeout: cfg.Scheduler.RefreshTimeout,
	})
	return a, nil
}

func (a *Application) openStore() (ports.Store, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendSQLite:
		s, err := sqlite.Open(a.cfg.Storage.URL)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendREST, "":
		return rest.New(a.cfg.Storage.URL, a.cfg.Storage.Key, storeTimeout), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

func newAnalyzer(cfg config.AnalysisConfig) (ports.TextAnalyzer, error) {
	if cfg.Provider == config.ProviderPoe {
		return llm.NewChatCompletionClient(llm.ChatConfig{
			Endpoint:     cfg.Endpoint,
			Model:        cfg.Model,
			APIKey:       cfg.APIKey,
			SystemPrompt: cfg.SystemPrompt,
			Timeout:      cfg.Timeout,
		}), nil
	}
	analyzer, err := llm.NewClaudeAnalyzer(llm.ClaudeConfig{
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Timeout:      cfg.Timeout,
		BaseURL:      cfg.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis client: %w", err)
	}
	return analyzer, nil
}

// sharedStoreWithLocalLease reports whether refresh counters live in a store
// other processes can reach while the refresh lease is only process-local.
func sharedStoreWithLocalLease(cfg config.Config) bool {
	backend := cfg.Storage.Backend
	return (backend == config.BackendREST || backend == "") && cfg.Lease.RedisAddress == ""
}

func (a *Application) newLocker(ctx context.Context) (ports.Locker, error) {
	if a.cfg.Lease.RedisAddress == "" {
		if sharedStoreWithLocalLease(a.cfg) {
			a.logger.Warn("refresh lease is process-local; run a single replica or set REDIS_ADDRESS",
				"storage_backend", config.BackendREST)
		}
		return lease.NewMemoryLocker(), nil
	}
	locker, err := lease.NewRedisLocker(ctx, a.cfg.Lease.RedisAddress)
	if err != nil {
		return nil, fmt.Errorf("refresh lease: %w", err)
	}
	a.closers = append(a.closers, locker.Close)
	return locker, nil
}

// Scan runs one full scan synchronously.
func (a *Application) Scan(ctx context.Context, industry string) (domain.Scan, error) {
	if industry == "" {
		industry = a.cfg.Tenant.DefaultIndustry
	}
	return a.orchestrator.Run(ctx, usecase.ScanRequest{Industry: industry})
}

// Refresh runs one manual refresh synchronously.
func (a *Application) Refresh(ctx context.Context, scanID string) (domain.RefreshLog, error) {
	return a.orchestrator.Refresh(ctx, usecase.RefreshRequest{ScanID: scanID, Trigger: domain.TriggerManual})
}

// Sweep performs one sweep tick and waits for the refreshes it launched.
func (a *Application) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	report, err := a.sweeper.Sweep(ctx)
	a.sweeper.Wait()
	return report, err
}

// Serve runs the HTTP API and cron-driven sweeps until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Orchestrator: a.orchestrator,
		Sweeper:      a.sweeper,
		Store:        a.store,
		CronSecret:   a.cfg.Server.CronSecret,
		Logger:       a.logger,
	})
	serveErr := api.Serve(ctx, a.cfg.Server.Addr, handler, a.logger)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(serveErr, a.sweeper.Stop(stopCtx))
}

// Close releases storage and lease connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
