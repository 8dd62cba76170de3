package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
)

const compensationTimeout = 10 * time.Second

// PersistenceCoordinator writes a successful result in two phases and
// removes the summary again when the detail phase fails.
type PersistenceCoordinator struct {
	tx        database.TxManager
	snapshots repository.SnapshotRepository
	holdings  repository.HoldingSnapshotRepository
	execLogs  repository.ExecutionLogRepository
	batchSize int
	audit     *logger.AuditLogger
	log       *logrus.Entry
	now       func() time.Time
}

// NewPersistenceCoordinator creates a coordinator inserting details in chunks of batchSize
func NewPersistenceCoordinator(
	tx database.TxManager,
	snapshots repository.SnapshotRepository,
	holdings repository.HoldingSnapshotRepository,
	execLogs repository.ExecutionLogRepository,
	batchSize int,
	log *logrus.Logger,
) *PersistenceCoordinator {
	if batchSize <= 0 {
		batchSize = repository.DefaultBatchSize
	}
	return &PersistenceCoordinator{
		tx:        tx,
		snapshots: snapshots,
		holdings:  holdings,
		execLogs:  execLogs,
		batchSize: batchSize,
		audit:     logger.NewAuditLogger(log),
		log:       log.WithField("component", "persistence"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Persist stores the result summary, then the execution logs and holding
// snapshots that reference it. It returns the summary id.
func (p *PersistenceCoordinator) Persist(ctx context.Context, backtestID int64, payload *models.CallbackPayload) (summaryID int64, err error) {
	snapshot, err := p.BuildSnapshot(backtestID, payload)
	if err != nil {
		return 0, apperrors.Persistence("phase1", err)
	}

	start := time.Now()
	err = p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := p.snapshots.Create(txCtx, snapshot)
		if err != nil {
			return err
		}
		summaryID = id
		return nil
	})
	metrics.RecordPersistencePhase("summary", time.Since(start))
	if err != nil {
		return 0, apperrors.Persistence("phase1", err)
	}

	entry := p.log.WithFields(logrus.Fields{"backtest_id": backtestID, "snapshot_id": summaryID})
	entry.Debug("Result summary stored")

	detailsStored := false
	defer func() {
		if detailsStored {
			return
		}
		cause := err
		if r := recover(); r != nil {
			cause = fmt.Errorf("panic: %v", r)
			p.compensate(ctx, backtestID, summaryID, cause)
			panic(r)
		}
		p.compensate(ctx, backtestID, summaryID, cause)
		err = apperrors.Persistence("phase2", cause)
		summaryID = 0
	}()

	start = time.Now()
	err = p.persistDetails(ctx, backtestID, summaryID, payload)
	metrics.RecordPersistencePhase("details", time.Since(start))
	if err != nil {
		return summaryID, err
	}

	detailsStored = true
	entry.Info("Backtest result persisted")
	return summaryID, nil
}

func (p *PersistenceCoordinator) persistDetails(ctx context.Context, backtestID, summaryID int64, payload *models.CallbackPayload) error {
	logs, err := p.BuildExecutionLogs(backtestID, summaryID, payload.ExecutionLogs)
	if err != nil {
		return err
	}
	holdings := BuildHoldingSnapshots(summaryID, payload.ResultSummary)

	return p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.execLogs.InsertBatch(txCtx, logs, p.batchSize); err != nil {
			return err
		}
		return p.holdings.InsertBatch(txCtx, holdings, p.batchSize)
	})
}

// Discard removes a stored result summary whose backtest could not be completed.
// Detail rows go with it.
func (p *PersistenceCoordinator) Discard(ctx context.Context, backtestID, summaryID int64, cause error) error {
	if err := p.compensate(ctx, backtestID, summaryID, cause); err != nil {
		return apperrors.Persistence("discard", err)
	}
	return nil
}

// compensate deletes the summary row and logs the outcome
func (p *PersistenceCoordinator) compensate(ctx context.Context, backtestID, summaryID int64, cause error) error {
	start := time.Now()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	delErr := p.snapshots.Delete(cctx, summaryID)
	metrics.RecordPersistencePhase("compensation", time.Since(start))
	if delErr != nil {
		metrics.RecordCompensation("failure")
	} else {
		metrics.RecordCompensation("success")
	}
	p.audit.LogCompensation(backtestID, summaryID, cause, delErr)
	return delErr
}

// BuildSnapshot maps the callback into a result summary row
func (p *PersistenceCoordinator) BuildSnapshot(backtestID int64, payload *models.CallbackPayload) (*models.PortfolioSnapshot, error) {
	if payload == nil || payload.PortfolioSnapshot == nil {
		return nil, apperrors.Validation("portfolio_snapshot", "callback carries no portfolio snapshot")
	}
	ps := payload.PortfolioSnapshot

	blob, err := encodeMetrics(payload.Metrics, payload.BenchmarkMetrics)
	if err != nil {
		return nil, err
	}

	execTime := ps.ExecutionSeconds()
	if execTime == nil {
		execTime = payload.ExecutionTime
	}

	return &models.PortfolioSnapshot{
		BacktestID:    backtestID,
		BaseValue:     ps.BaseValue,
		CurrentValue:  ps.CurrentValue,
		Metrics:       blob,
		StartAt:       ps.StartAt.Ptr(),
		EndAt:         ps.EndAt.Ptr(),
		ExecutionTime: execTime,
		CreatedAt:     p.now(),
	}, nil
}

// BuildExecutionLogs maps engine log entries; a missing date becomes now
func (p *PersistenceCoordinator) BuildExecutionLogs(backtestID, summaryID int64, entries []models.ExecutionLogPayload) ([]models.ExecutionLog, error) {
	out := make([]models.ExecutionLog, 0, len(entries))
	now := p.now()

	for _, e := range entries {
		action, err := models.ParseActionType(e.Action)
		if err != nil {
			return nil, apperrors.Validation("action", err.Error())
		}

		logDate := now
		if d := e.Date.Ptr(); d != nil {
			logDate = *d
		} else {
			p.log.WithFields(logrus.Fields{
				"backtest_id": backtestID,
				"action":      e.Action,
			}).Warn("Execution log has no date, using current time")
		}

		out = append(out, models.ExecutionLog{
			PortfolioSnapshotID: summaryID,
			BacktestID:          backtestID,
			LogDate:             logDate,
			ActionType:          action,
			Category:            e.Category,
			TriggerValue:        valueOrZero(e.TriggerValue),
			ThresholdValue:      valueOrZero(e.ThresholdValue),
			Reason:              e.Reason,
			PortfolioValue:      valueOrZero(e.PortfolioValue),
			CreatedAt:           now,
		})
	}
	return out, nil
}

// BuildHoldingSnapshots flattens the daily result summary into one row per stock per day
func BuildHoldingSnapshots(summaryID int64, days []models.DailyResultPayload) []models.HoldingSnapshot {
	var out []models.HoldingSnapshot
	for _, day := range days {
		for _, s := range day.Stocks {
			recorded := day.Date.Time
			if recorded.IsZero() {
				recorded = s.Date.Time
			}
			out = append(out, models.HoldingSnapshot{
				PortfolioSnapshotID: summaryID,
				StockCode:           s.StockCode,
				Weight:              s.PortfolioWeight,
				Price:               s.ClosePrice,
				Quantity:            s.Quantity,
				Value:               decimal.NewFromInt(int64(s.Quantity)).Mul(decimal.NewFromFloat(s.ClosePrice)),
				RecordedAt:          recorded,
				Contribution:        s.PortfolioContribution,
				DailyRatio:          s.DailyReturn,
			})
		}
	}
	return out
}

func encodeMetrics(m *models.MetricsPayload, bench *models.BenchmarkMetricsPayload) (json.RawMessage, error) {
	if m == nil && bench == nil {
		return nil, nil
	}

	var blob models.MetricsBlob
	if m != nil {
		blob = models.MetricsBlob{
			TotalReturn:      m.TotalReturn,
			AnnualizedReturn: m.AnnualizedReturn,
			Volatility:       m.Volatility,
			SharpeRatio:      m.SharpeRatio,
			MaxDrawdown:      m.MaxDrawdown,
			VaR95:            m.VaR95,
			VaR99:            m.VaR99,
			CVaR95:           m.CVaR95,
			CVaR99:           m.CVaR99,
			WinRate:          m.WinRate,
			ProfitLossRatio:  m.ProfitLossRatio,
		}
	}
	if bench != nil {
		blob.Benchmark = &models.BenchmarkBlob{
			BenchmarkTotalReturn:  bench.BenchmarkTotalReturn,
			BenchmarkVolatility:   bench.BenchmarkVolatility,
			BenchmarkMaxPrice:     bench.BenchmarkMaxPrice,
			BenchmarkMinPrice:     bench.BenchmarkMinPrice,
			Alpha:                 bench.Alpha,
			BenchmarkDailyAverage: bench.BenchmarkDailyAverage,
		}
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}
	return data, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
