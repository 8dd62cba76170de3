// Package main runs the backtest orchestrator service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/api"
	"github.com/yourusername/backtest-orchestrator/internal/app"
	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/health"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/scheduler"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadResolved(ctx, *configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"version":     Version,
		"commit":      GitCommit,
	}).Info("Backtest orchestrator starting")

	a, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to build application")
	}

	probes := health.NewServer(health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Port:        cfg.Health.Port,
		Logger:      appLog,
	})
	probes.AddCheck("database", health.DatabaseCheck(a.DB))
	probes.AddCheck("engine", health.EngineCheck(a.Engine))
	probes.AddCheck("worker_pool", health.PoolCheck(a.Pool))
	if err := probes.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}

	sched := scheduler.NewScheduler(appLog)
	if cfg.Watchdog.Enabled {
		if err := sched.ScheduleWatchdog(a.Orchestrator, cfg.Watchdog.Interval(), cfg.Watchdog.RunningTimeout()); err != nil {
			appLog.WithError(err).Fatal("Failed to schedule watchdog")
		}
		if err := sched.Start(); err != nil {
			appLog.WithError(err).Fatal("Failed to start scheduler")
		}
	}

	deps := api.Dependencies{
		Backtests: a.Backtests,
		Queries:   a.Queries,
		Executor:  a.Orchestrator,
		Callbacks: a.Callbacks,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsPath = cfg.Metrics.Path
	}
	server := api.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), deps, appLog)

	probes.SetReady(true)
	if err := server.Run(ctx); err != nil {
		appLog.WithError(err).Error("API server stopped with error")
	}

	appLog.Info("Initiating graceful shutdown")
	probes.SetReady(false)
	if err := sched.Stop(); err != nil {
		appLog.WithError(err).Warn("Scheduler did not stop cleanly")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.WorkerPool.DrainTimeout()+5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		appLog.WithError(err).Error("Shutdown incomplete")
	}
	appLog.Info("Backtest orchestrator shut down")
}
