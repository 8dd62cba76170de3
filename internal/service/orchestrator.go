package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/events"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
)

const taskEngineSubmit = "engine.submit"

// EngineSubmitter hands a backtest to the compute engine
type EngineSubmitter interface {
	Submit(ctx context.Context, backtestID int64)
}

// ResultPersister stores a successful result and can take it back
type ResultPersister interface {
	Persist(ctx context.Context, backtestID int64, payload *models.CallbackPayload) (int64, error)
	Discard(ctx context.Context, backtestID, summaryID int64, cause error) error
}

// ReportGenerator enriches a completed result with a report
type ReportGenerator interface {
	GenerateAndAttach(ctx context.Context, backtestID int64) error
}

// ExecutionOrchestrator drives a backtest from CREATED through RUNNING to a terminal status
type ExecutionOrchestrator struct {
	status    *StatusManager
	pool      events.Submitter
	engine    EngineSubmitter
	persister ResultPersister
	reports   ReportGenerator
	backtests repository.BacktestRepository
	audit     *logger.AuditLogger
	log       *logrus.Entry
}

// NewExecutionOrchestrator wires the orchestrator to its collaborators
func NewExecutionOrchestrator(
	status *StatusManager,
	pool events.Submitter,
	engine EngineSubmitter,
	persister ResultPersister,
	reports ReportGenerator,
	backtests repository.BacktestRepository,
	log *logrus.Logger,
) *ExecutionOrchestrator {
	return &ExecutionOrchestrator{
		status:    status,
		pool:      pool,
		engine:    engine,
		persister: persister,
		reports:   reports,
		backtests: backtests,
		audit:     logger.NewAuditLogger(log),
		log:       log.WithField("component", "orchestrator"),
	}
}

// Start marks the backtest RUNNING and queues the engine submission.
// It returns as soon as the submission is queued.
func (o *ExecutionOrchestrator) Start(ctx context.Context, backtestID int64) (int64, error) {
	if err := o.status.MarkRunning(ctx, backtestID); err != nil {
		return 0, err
	}
	metrics.RecordBacktestStarted()

	err := o.pool.Submit(taskEngineSubmit, func(taskCtx context.Context) {
		o.engine.Submit(taskCtx, backtestID)
	})
	if err != nil {
		o.log.WithField("backtest_id", backtestID).WithError(err).Error("Worker pool rejected engine submission")
		if serr := o.status.SetStatus(context.WithoutCancel(ctx), backtestID, models.StatusFailed); serr != nil {
			o.log.WithField("backtest_id", backtestID).WithError(serr).Error("Failed to mark rejected backtest as failed")
		}
		return 0, apperrors.Unavailable(taskEngineSubmit, err)
	}

	o.log.WithField("backtest_id", backtestID).Info("Backtest started")
	return backtestID, nil
}

// RegisterHandlers binds the success and failure handlers to d
func (o *ExecutionOrchestrator) RegisterHandlers(d *events.Dispatcher) error {
	if err := d.Handle(events.KindSuccess, o.handleSuccess); err != nil {
		return err
	}
	return d.Handle(events.KindFailure, o.handleFailure)
}

func (o *ExecutionOrchestrator) handleFailure(ctx context.Context, sig events.Signal) {
	o.log.WithFields(logrus.Fields{
		"backtest_id": sig.BacktestID,
		"signal_id":   sig.ID.String(),
		"reason":      sig.Message,
	}).Warn("Backtest failed")
	o.markFailed(ctx, sig.BacktestID)
}

func (o *ExecutionOrchestrator) handleSuccess(ctx context.Context, sig events.Signal) {
	entry := o.log.WithFields(logrus.Fields{
		"backtest_id": sig.BacktestID,
		"signal_id":   sig.ID.String(),
	})

	summaryID, err := o.persister.Persist(ctx, sig.BacktestID, sig.Payload)
	if err != nil {
		entry.WithError(err).Error("Failed to persist backtest result")
		o.markFailed(ctx, sig.BacktestID)
		return
	}

	if err := o.status.SetStatus(ctx, sig.BacktestID, models.StatusCompleted); err != nil {
		entry.WithError(err).WithField("snapshot_id", summaryID).Error("Failed to mark backtest completed, discarding result")
		if derr := o.persister.Discard(ctx, sig.BacktestID, summaryID, err); derr != nil {
			entry.WithError(derr).WithField("snapshot_id", summaryID).Error("Failed to discard result of uncompleted backtest")
		}
		o.markFailed(ctx, sig.BacktestID)
		return
	}
	resultStatus := models.ResultCompleted
	if sig.Payload != nil {
		resultStatus = sig.Payload.NormalizedResultStatus()
	}
	if err := o.status.SetResultStatus(ctx, sig.BacktestID, resultStatus); err != nil {
		entry.WithError(err).Error("Failed to record result status")
	}
	entry.WithFields(logrus.Fields{
		"snapshot_id":   summaryID,
		"result_status": resultStatus,
	}).Info("Backtest completed")

	if err := o.reports.GenerateAndAttach(ctx, sig.BacktestID); err != nil {
		entry.WithError(err).Warn("Report generation failed")
	}
}

func (o *ExecutionOrchestrator) markFailed(ctx context.Context, backtestID int64) bool {
	entry := o.log.WithField("backtest_id", backtestID)
	if err := o.status.SetStatus(ctx, backtestID, models.StatusFailed); err != nil {
		entry.WithError(err).Error("Failed to mark backtest failed")
		return false
	}
	if err := o.status.SetResultStatus(ctx, backtestID, models.ResultFailed); err != nil {
		entry.WithError(err).Error("Failed to record failed result status")
	}
	return true
}

// FailStuck fails every backtest RUNNING for longer than olderThan and returns how many it failed
func (o *ExecutionOrchestrator) FailStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	ids, err := o.backtests.ListRunningSince(ctx, cutoff)
	if err != nil {
		return 0, apperrors.Internal("watchdog.list", err)
	}

	failed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}
		if o.markFailed(ctx, id) {
			failed++
		}
	}

	o.audit.LogWatchdogSweep(cutoff, failed)
	metrics.RecordStuckBacktests(failed)
	return failed, nil
}

// RegenerateReport reruns enrichment for a completed backtest
func (o *ExecutionOrchestrator) RegenerateReport(ctx context.Context, backtestID int64) error {
	status, err := o.status.GetStatus(ctx, backtestID)
	if err != nil {
		return err
	}
	if status != models.StatusCompleted {
		return apperrors.Conflict(resourceBacktest, backtestID, fmt.Sprintf("report needs a COMPLETED backtest, status is %s", status))
	}
	return o.reports.GenerateAndAttach(ctx, backtestID)
}
