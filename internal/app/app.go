package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/answers"
	"github.com/ternarybob/peto/internal/apiclient"
	"github.com/ternarybob/peto/internal/ats"
	"github.com/ternarybob/peto/internal/captcha"
	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/events"
	"github.com/ternarybob/peto/internal/handlers"
	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/interventions"
	"github.com/ternarybob/peto/internal/models"
	"github.com/ternarybob/peto/internal/orchestrator"
	"github.com/ternarybob/peto/internal/pipeline"
	"github.com/ternarybob/peto/internal/ratelimit"
	"github.com/ternarybob/peto/internal/sessions"
	"github.com/ternarybob/peto/internal/state"
	badgerstorage "github.com/ternarybob/peto/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	BadgerDB            *badgerstorage.BadgerDB
	EventService        interfaces.EventService
	SessionManager      *sessions.Manager
	StateStore          *state.FileStore
	InterventionService *interventions.Service
	CaptchaSolver       *captcha.Solver
	Registry            *ats.Registry
	RateLimiter         *ratelimit.Limiter
	Answerer            interfaces.QuestionAnswerer
	Agent               *orchestrator.Agent
	APIClient           *apiclient.Client
	Pipeline            *pipeline.Pipeline

	// HTTP handlers
	WSHandler           *handlers.WebSocketHandler
	InterventionHandler *handlers.InterventionHandler
	APIHandler          *handlers.APIHandler

	gc *cron.Cron
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	app.EventService = events.NewService(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	db, err := badgerstorage.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize badger: %w", err)
	}
	app.BadgerDB = db

	interventionStore := badgerstorage.NewInterventionStorage(db, logger)
	app.InterventionService = interventions.NewService(interventionStore, app.EventService, logger)

	stateStore, err := state.NewFileStore(cfg.State.Dir, time.Duration(cfg.State.ResumableHours)*time.Hour, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}
	app.StateStore = stateStore

	// Sessions interrupted by the previous shutdown are failed; paused
	// ones stay resumable
	recovered, err := stateStore.RecoverInterrupted(context.Background())
	if err != nil {
		return nil, fmt.Errorf("startup state recovery failed: %w", err)
	}
	if recovered > 0 {
		logger.Warn().Int("count", recovered).Msg("Failed application sessions interrupted by restart")
	}

	app.SessionManager = sessions.NewManager(
		browserDefaults(&cfg.Browser),
		time.Duration(cfg.Sessions.IdleTimeoutSec)*time.Second,
		app.EventService,
		logger,
	)
	if err := app.SessionManager.Start(time.Duration(cfg.Sessions.CleanupIntervalSec) * time.Second); err != nil {
		return nil, fmt.Errorf("failed to start session manager: %w", err)
	}

	app.CaptchaSolver = captcha.NewSolver(cfg.Captcha.APIKey, cfg.Captcha.APIBase, logger)

	app.Registry = ats.NewRegistry(logger)
	if cfg.ATS.SelectorOverrides != "" {
		if err := app.Registry.LoadOverrides(cfg.ATS.SelectorOverrides); err != nil {
			return nil, fmt.Errorf("failed to load selector overrides: %w", err)
		}
	}

	app.RateLimiter = ratelimit.NewLimiter(cfg.Limits.MaxAutomatedPerDay, cfg.Limits.MaxAutoPerDay, logger)

	answerer, err := answers.NewFromConfig(context.Background(), &cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize answering provider: %w", err)
	}
	app.Answerer = answerer

	app.Agent = orchestrator.NewAgent(
		app.SessionManager,
		app.CaptchaSolver,
		app.Registry,
		app.InterventionService,
		app.StateStore,
		app.EventService,
		app.Answerer,
		logger,
	)

	if cfg.API.BaseURL != "" {
		client, err := apiclient.New(cfg.API.BaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create API client: %w", err)
		}
		app.APIClient = client
		app.Pipeline = pipeline.New(client, client, app.Agent, app.RateLimiter, app.EventService, logger)
	}

	app.InterventionHandler = handlers.NewInterventionHandler(app.InterventionService, app.Agent, logger)
	app.APIHandler = handlers.NewAPIHandler(app.SessionManager, logger)

	if err := app.startStateGC(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("backend", cfg.Browser.Backend).
		Str("state_dir", cfg.State.Dir).
		Msg("Application initialized")
	return app, nil
}

// startStateGC schedules periodic cleanup of terminal state records
func (a *App) startStateGC() error {
	schedule := a.Config.State.GCSchedule
	if schedule == "" {
		return nil
	}

	a.gc = cron.New()
	grace := time.Duration(a.Config.State.GraceHours) * time.Hour
	_, err := a.gc.AddFunc(schedule, func() {
		removed, err := a.StateStore.CleanupOld(context.Background(), grace)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("State store cleanup failed")
			return
		}
		if removed > 0 {
			a.Logger.Info().Int("removed", removed).Msg("State store cleanup finished")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid state GC schedule %q: %w", schedule, err)
	}
	a.gc.Start()
	return nil
}

// Close shuts down all components in dependency order
func (a *App) Close(ctx context.Context) {
	if a.gc != nil {
		a.gc.Stop()
	}
	if a.SessionManager != nil {
		a.SessionManager.Shutdown(ctx)
	}
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.BadgerDB != nil {
		if err := a.BadgerDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Badger close failed")
		}
	}
	a.Logger.Info().Msg("Application stopped")
}

// browserDefaults maps config to the session manager's default options
func browserDefaults(cfg *common.BrowserConfig) models.BrowserOptions {
	return models.BrowserOptions{
		Backend:         models.BackendMode(cfg.Backend),
		Headless:        cfg.Headless,
		ViewportWidth:   cfg.ViewportWidth,
		ViewportHeight:  cfg.ViewportHeight,
		SlowMo:          time.Duration(cfg.SlowMoMs) * time.Millisecond,
		UserAgent:       cfg.UserAgent,
		DefaultTimeout:  time.Duration(cfg.DefaultTimeoutSec) * time.Second,
		NavTimeout:      time.Duration(cfg.NavTimeoutSec) * time.Second,
		DevtoolsCommand: cfg.DevtoolsCommand,
		DevtoolsArgs:    cfg.DevtoolsArgs,
		ScreenshotDir:   cfg.ScreenshotDir,
	}
}
