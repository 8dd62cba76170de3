// Package app wires the orchestrator's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/engine"
	"github.com/yourusername/backtest-orchestrator/internal/events"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/report"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
	"github.com/yourusername/backtest-orchestrator/internal/service"
	"github.com/yourusername/backtest-orchestrator/internal/worker"
)

// App holds every long-lived component
type App struct {
	Config       *config.Config
	DB           *database.DB
	Repos        *repository.Repositories
	Pool         *worker.Pool
	Dispatcher   *events.Dispatcher
	Engine       *engine.Client
	Status       *service.StatusManager
	Orchestrator *service.ExecutionOrchestrator
	Backtests    *service.BacktestService
	Queries      *service.QueryService
	Callbacks    *service.CallbackReceiver
	Reports      *service.ReportService

	log *logrus.Entry
}

// Build connects to the database and wires the services
func Build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	metrics.InitRegistry()

	db, err := database.Initialize(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	repos, err := repository.NewRepositories(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	pool := worker.NewPool(worker.ConfigFrom(cfg.WorkerPool), log, metrics.PoolRecorder{})
	dispatcher := events.NewDispatcher(pool, log)

	engineClient := engine.NewClient(cfg, engine.Dependencies{
		Backtests:  repos.Backtest,
		Rules:      repos.Rule,
		Portfolios: repos.Portfolio,
		Publisher:  dispatcher,
	}, log)

	status := service.NewStatusManager(repos.Backtest, cfg.Cache.StatusTTL(), log)
	persister := service.NewPersistenceCoordinator(db, repos.Snapshot, repos.HoldingSnapshot, repos.ExecutionLog, cfg.Persistence.BatchSize, log)
	reports := service.NewReportService(repos, newRenderer(cfg.Report, log), cfg.Report.Timeout(), log)

	orchestrator := service.NewExecutionOrchestrator(status, pool, engineClient, persister, reports, repos.Backtest, log)
	if err := orchestrator.RegisterHandlers(dispatcher); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register signal handlers: %w", err)
	}

	return &App{
		Config:       cfg,
		DB:           db,
		Repos:        repos,
		Pool:         pool,
		Dispatcher:   dispatcher,
		Engine:       engineClient,
		Status:       status,
		Orchestrator: orchestrator,
		Backtests:    service.NewBacktestService(db, repos.Backtest, repos.Rule, status, log),
		Queries:      service.NewQueryService(repos, status, log),
		Callbacks:    service.NewCallbackReceiver(dispatcher, log),
		Reports:      reports,
		log:          log.WithField("component", "app"),
	}, nil
}

func newRenderer(cfg config.ReportConfig, log *logrus.Logger) report.Renderer {
	if !cfg.Enabled {
		log.WithField("component", "app").Info("AI reports disabled, storing analysis documents as reports")
		return report.StaticRenderer{}
	}
	return report.NewOpenAIRenderer(cfg, log)
}

// Close drains the worker pool within its drain timeout, then releases connections
func (a *App) Close(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, a.Pool.DrainTimeout())
	defer cancel()

	var errs []error
	if err := a.Pool.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine client: %w", err))
	}
	a.DB.Close()

	err := errors.Join(errs...)
	if err != nil {
		a.log.WithError(err).Warn("Shutdown finished with errors")
	}
	return err
}
