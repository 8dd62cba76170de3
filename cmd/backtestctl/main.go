// Package main provides an operator CLI for backtest jobs.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/backtest-orchestrator/internal/app"
	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
)

var (
	configFile  string
	olderThan   time.Duration
	timeout     time.Duration
	appLog      *logrus.Logger
	application *app.App

	cancelTimeout context.CancelFunc
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall command timeout")
	sweepCmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Hour, "Fail backtests RUNNING for longer than this")

	rootCmd.AddCommand(statusCmd, portfolioStatusCmd, sweepCmd, reportCmd, engineHealthCmd)
}

var rootCmd = &cobra.Command{
	Use:   "backtestctl",
	Short: "Inspect and maintain backtest jobs",
	Long:  `Operator commands for backtest job status, stuck-job sweeps, report regeneration and engine health.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if timeout > 0 {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			cancelTimeout = cancel
			cmd.SetContext(ctx)
		}

		cfg, err := config.LoadResolved(cmd.Context(), configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLog = logger.NewLoggerWithOutput(cfg.App.LogLevel, os.Stderr)

		application, err = app.Build(cmd.Context(), cfg, appLog)
		if err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

var statusCmd = &cobra.Command{
	Use:   "status <backtest-id>",
	Short: "Show the status of a backtest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		meta, err := application.Queries.Metadata(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backtest %d (%s)\n", meta.ID, meta.Title)
		fmt.Fprintf(cmd.OutOrStdout(), "  Portfolio: %d\n", meta.PortfolioID)
		fmt.Fprintf(cmd.OutOrStdout(), "  Period:    %s ~ %s\n", meta.StartAt.Format("2006-01-02"), meta.EndAt.Format("2006-01-02"))
		fmt.Fprintf(cmd.OutOrStdout(), "  Status:    %s\n", meta.Status)
		return nil
	},
}

var portfolioStatusCmd = &cobra.Command{
	Use:   "portfolio-status <portfolio-id>",
	Short: "List backtest statuses of a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		statuses, err := application.Queries.Statuses(cmd.Context(), id)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Portfolio %d has no backtests\n", id)
			return nil
		}

		ids := make([]string, 0, len(statuses))
		for k := range statuses {
			ids = append(ids, k)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, _ := strconv.ParseInt(ids[i], 10, 64)
			b, _ := strconv.ParseInt(ids[j], 10, 64)
			return a < b
		})
		for _, k := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", k, statuses[k])
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail backtests stuck in RUNNING",
	RunE: func(cmd *cobra.Command, args []string) error {
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		failed, err := application.Orchestrator.FailStuck(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Failed %d stuck backtest(s) older than %s\n", failed, olderThan)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <backtest-id>",
	Short: "Regenerate the report of a completed backtest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := application.Orchestrator.RegenerateReport(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report regenerated for backtest %d\n", id)
		return nil
	},
}

var engineHealthCmd = &cobra.Command{
	Use:   "engine-health",
	Short: "Check the backtest engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := application.Engine.HealthCheck(cmd.Context()); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Engine: UNAVAILABLE (%v)\n", err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Engine: ONLINE")
		return nil
	},
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if cancelTimeout != nil {
		cancelTimeout()
	}
	if application != nil {
		if cerr := application.Close(context.Background()); cerr != nil {
			appLog.WithError(cerr).Warn("Cleanup failed")
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
