package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/match-odds-engine/external/inference"
	"github.com/riskibarqy/match-odds-engine/external/oddsapi"
	"github.com/riskibarqy/match-odds-engine/external/sofascore"
	"github.com/riskibarqy/match-odds-engine/external/telegram"
	"github.com/riskibarqy/match-odds-engine/internal/config"
	"github.com/riskibarqy/match-odds-engine/internal/infrastructure/repository/sqlstore"
	"github.com/riskibarqy/match-odds-engine/internal/interfaces/httpapi"
	"github.com/riskibarqy/match-odds-engine/internal/platform/credentials"
	"github.com/riskibarqy/match-odds-engine/internal/platform/id"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// App owns the engine's long-lived resources.
type App struct {
	cfg          config.Config
	logger       *logging.Logger
	db           *sqlx.DB
	odds         *oddsapi.Client
	leagueSync   *usecase.LeagueSyncService
	orchestrator *usecase.JobOrchestratorService
	server       *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	logger = logging.OrDefault(logger)

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo := sqlstore.NewMatchRepository(db)

	pool, err := credentials.NewPool(cfg.OddsAPIKeys, cfg.OddsAPIQuotaSwitchThreshold)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build credential pool: %w", err)
	}
	odds := oddsapi.NewClient(oddsapi.ClientConfig{
		HTTPClient:  tracedClient(cfg.OddsAPITimeout),
		BaseURL:     cfg.OddsAPIBaseURL,
		Credentials: pool,
		Regions:     cfg.OddsAPIRegions,
		Timeout:     cfg.OddsAPITimeout,
		Logger:      logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.OddsAPICircuitEnabled,
			FailureThreshold: cfg.OddsAPICircuitFailureCount,
			OpenTimeout:      cfg.OddsAPICircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.OddsAPICircuitHalfOpenMaxReq,
		},
	})
	stats := sofascore.NewClient(sofascore.ClientConfig{
		HTTPClient:     tracedClient(cfg.SofaScoreTimeout),
		BaseURL:        cfg.SofaScoreBaseURL,
		Timeout:        cfg.SofaScoreTimeout,
		MinInterval:    cfg.SofaScoreMinInterval,
		MaxRetries:     cfg.SofaScoreMaxRetries,
		EventsCacheTTL: cfg.SofaScoreEventsCacheTTL,
		Logger:         logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.SofaScoreCircuitEnabled,
			FailureThreshold: cfg.SofaScoreCircuitFailureCount,
			OpenTimeout:      cfg.SofaScoreCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.SofaScoreCircuitHalfOpenMaxReq,
		},
	})

	advisory, err := buildAdvisory(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	notifier, err := buildNotifier(cfg, tracedClient(telegramTimeout), logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	collector := usecase.NewCollectorService(repo, stats, odds, advisory, notifier, usecase.CollectorConfig{
		Offset:             cfg.CollectorOffset,
		Window:             cfg.CollectorWindow,
		SkipLosingFavorite: cfg.CollectorSkipLosingFavorite,
	}, logger)
	lifecycle := usecase.NewLifecycleService(repo, stats, collector, usecase.LifecycleConfig{
		StaleAfter:    cfg.LifecycleStaleAfter,
		FinalizeAfter: cfg.LifecycleFinalizeAfter,
		Workers:       cfg.LifecycleWorkers,
	}, logger)
	leagueSync := usecase.NewLeagueSyncService(repo, odds, usecase.LeagueSyncConfig{
		Leagues:         cfg.FootballLeagues,
		FavoriteCeiling: cfg.SyncFavoriteCeiling,
		Workers:         cfg.SyncLeagueWorkers,
		Location:        cfg.EngineLocation,
	}, logger)
	reconcile := usecase.NewReconcileService(repo, stats, usecase.ReconcileConfig{}, logger)
	orchestrator := usecase.NewJobOrchestratorService(leagueSync, reconcile, lifecycle, id.NewUUIDGenerator(), usecase.JobOrchestratorConfig{
		SyncInterval:      cfg.JobSyncInterval,
		LifecycleInterval: cfg.JobLifecycleInterval,
		FinalizeInterval:  cfg.JobFinalizeInterval,
	}, logger)

	handler := httpapi.NewHandler(odds, orchestrator, repo, logger)
	server := &http.Server{
		Addr:              cfg.OpsHTTPAddr,
		Handler:           httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	return &App{
		cfg:          cfg,
		logger:       logger.Named("app"),
		db:           db,
		odds:         odds,
		leagueSync:   leagueSync,
		orchestrator: orchestrator,
		server:       server,
	}, nil
}

const telegramTimeout = 15 * time.Second

// tracedClient returns a fresh otelhttp-instrumented client.
func tracedClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func buildAdvisory(cfg config.Config, logger *logging.Logger) (*usecase.AdvisoryService, error) {
	if !cfg.AdvisoryEnabled {
		return nil, nil
	}
	tierConfigs, err := inference.LoadTiers(cfg.AdvisoryTiersFile)
	if err != nil {
		return nil, fmt.Errorf("load advisory tiers: %w", err)
	}
	tiers, err := inference.BuildTiers(tierConfigs, inference.Keys{
		OpenRouter: cfg.OpenRouterAPIKey,
		Gemini:     cfg.GeminiAPIKey,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build advisory tiers: %w", err)
	}
	return usecase.NewAdvisoryService(tiers, nil, usecase.AdvisoryConfig{
		AlternateMinOdds: cfg.AdvisoryAlternateMinOdds,
	}, logger), nil
}

func buildNotifier(cfg config.Config, httpClient *http.Client, logger *logging.Logger) (*usecase.NotifierService, error) {
	if !cfg.TelegramEnabled() {
		return nil, nil
	}
	bot, err := telegram.NewNotifier(telegram.Config{
		Token:      cfg.TelegramBotToken,
		ChatID:     cfg.TelegramChatID,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build telegram notifier: %w", err)
	}
	return usecase.NewNotifierService(bot, usecase.NotifyRules{MinOdds: cfg.NotifyMinOdds}, nil, logger), nil
}

// Run warms the odds quota, checks the league list, serves the ops API and
// drives the jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.odds.WarmUp(ctx); err != nil {
		a.logger.WarnContext(ctx, "odds quota warm-up incomplete", "error", err)
	}
	if _, err := a.leagueSync.ValidateLeagues(ctx); err != nil {
		a.logger.WarnContext(ctx, "league validation skipped", "error", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("ops server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	jobsDone := make(chan struct{})
	go func() {
		defer close(jobsDone)
		a.orchestrator.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("ops server shutdown failed", "error", err)
	}
	cancel()
	<-jobsDone
	return runErr
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
