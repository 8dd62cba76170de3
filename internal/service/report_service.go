package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/analytics"
	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/report"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
)

// ReportService builds the analysis document of a completed run, renders it
// and attaches the text to the latest result summary.
type ReportService struct {
	backtests repository.BacktestRepository
	snapshots repository.SnapshotRepository
	holdings  repository.HoldingSnapshotRepository
	execLogs  repository.ExecutionLogRepository
	renderer  report.Renderer
	timeout   time.Duration
	log       *logger.ReportLogger
}

// NewReportService creates a report service; timeout bounds one render, zero means none
func NewReportService(repos *repository.Repositories, renderer report.Renderer, timeout time.Duration, log *logrus.Logger) *ReportService {
	return &ReportService{
		backtests: repos.Backtest,
		snapshots: repos.Snapshot,
		holdings:  repos.HoldingSnapshot,
		execLogs:  repos.ExecutionLog,
		renderer:  renderer,
		timeout:   timeout,
		log:       logger.NewReportLogger(log),
	}
}

// GenerateAndAttach renders and stores the report of backtestID
func (s *ReportService) GenerateAndAttach(ctx context.Context, backtestID int64) error {
	in, err := s.load(ctx, backtestID)
	if err != nil {
		return apperrors.Enrichment("report.load", err)
	}
	doc := analytics.BuildDocument(*in)

	renderCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.renderer.Render(renderCtx, doc)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordReportRender(s.renderer.Name(), "failure", elapsed)
		s.log.LogRenderError(backtestID, s.renderer.Name(), err)
		return apperrors.Enrichment("report.render", err)
	}
	metrics.RecordReportRender(s.renderer.Name(), "success", elapsed)
	s.log.LogRender(backtestID, s.renderer.Name(), len(doc), len(text), float64(elapsed.Milliseconds()))

	if err := s.snapshots.AttachReport(ctx, in.Snapshot.ID, text, time.Now().UTC()); err != nil {
		return apperrors.Enrichment("report.attach", err)
	}
	return nil
}

func (s *ReportService) load(ctx context.Context, backtestID int64) (*analytics.DocumentInput, error) {
	b, err := s.backtests.GetByID(ctx, backtestID)
	if err != nil {
		return nil, notFoundOr(err, resourceBacktest, backtestID)
	}
	snapshot, err := s.snapshots.GetLatestByBacktest(ctx, backtestID)
	if err != nil {
		return nil, notFoundOr(err, "backtest result", backtestID)
	}
	holdings, err := s.holdings.ListBySnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	logs, err := s.execLogs.ListBySnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}

	return &analytics.DocumentInput{
		Backtest:   b,
		Snapshot:   snapshot,
		Holdings:   holdings,
		Executions: logs,
	}, nil
}

// notFoundOr translates repository misses into apperrors.NotFound
func notFoundOr(err error, resource string, id any) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return err
}
