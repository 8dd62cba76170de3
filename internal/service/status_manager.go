// Package service implements the backtest lifecycle: status management,
// engine hand-off, callback ingestion, result persistence and report enrichment.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
)

const resourceBacktest = "backtest"

// StatusManager is the only writer of backtest status and result status.
// Every write commits on its own, independent of any transaction in ctx.
type StatusManager struct {
	backtests repository.BacktestRepository
	cache     *cache.Cache
	audit     *logger.AuditLogger
	log       *logrus.Entry
}

// NewStatusManager creates a status manager caching portfolio status maps for ttl
func NewStatusManager(backtests repository.BacktestRepository, ttl time.Duration, log *logrus.Logger) *StatusManager {
	return &StatusManager{
		backtests: backtests,
		cache:     cache.New(ttl, 2*ttl),
		audit:     logger.NewAuditLogger(log),
		log:       log.WithField("component", "status_manager"),
	}
}

// SetStatus overwrites the lifecycle status of a live backtest
func (m *StatusManager) SetStatus(ctx context.Context, id int64, status models.BacktestStatus) error {
	b, err := m.lookup(ctx, id)
	if err != nil {
		return m.fail(id, "status", err)
	}

	if err := m.backtests.UpdateStatus(ctx, id, status); err != nil {
		return m.fail(id, "status", m.translate(id, "status.set", err))
	}

	if b.Status == models.StatusRunning && status.IsTerminal() && !b.StatusUpdatedAt.IsZero() {
		metrics.RecordBacktestDuration(time.Since(b.StatusUpdatedAt))
	}
	m.recorded(b, "status", string(b.Status), string(status))
	return nil
}

// MarkRunning moves a backtest to RUNNING, refusing when it already is
func (m *StatusManager) MarkRunning(ctx context.Context, id int64) error {
	b, err := m.lookup(ctx, id)
	if err != nil {
		return m.fail(id, "status", err)
	}

	if err := m.backtests.MarkRunning(ctx, id); err != nil {
		if errors.Is(err, models.ErrStatusConflict) {
			return m.fail(id, "status", apperrors.Conflict(resourceBacktest, id, "already RUNNING"))
		}
		return m.fail(id, "status", m.translate(id, "status.mark_running", err))
	}

	m.recorded(b, "status", string(b.Status), string(models.StatusRunning))
	return nil
}

// SetResultStatus records the engine's classification of a finished run
func (m *StatusManager) SetResultStatus(ctx context.Context, id int64, status models.ResultStatus) error {
	b, err := m.lookup(ctx, id)
	if err != nil {
		return m.fail(id, "result_status", err)
	}

	if err := m.backtests.UpdateResultStatus(ctx, id, status); err != nil {
		return m.fail(id, "result_status", m.translate(id, "status.set_result", err))
	}

	previous := ""
	if b.ResultStatus != nil {
		previous = string(*b.ResultStatus)
	}
	m.recorded(b, "result_status", previous, string(status))
	return nil
}

// GetStatus returns the current lifecycle status
func (m *StatusManager) GetStatus(ctx context.Context, id int64) (models.BacktestStatus, error) {
	status, err := m.backtests.GetStatus(ctx, id)
	if err != nil {
		return "", m.translate(id, "status.get", err)
	}
	return status, nil
}

// StatusesByPortfolio maps backtest ids to status strings for a portfolio
func (m *StatusManager) StatusesByPortfolio(ctx context.Context, portfolioID int64) (map[string]string, error) {
	key := portfolioKey(portfolioID)
	if cached, ok := m.cache.Get(key); ok {
		return copyStatuses(cached.(map[string]string)), nil
	}

	statuses, err := m.backtests.StatusesByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.Internal("status.by_portfolio", err)
	}

	out := make(map[string]string, len(statuses))
	for id, status := range statuses {
		out[strconv.FormatInt(id, 10)] = string(status)
	}
	m.cache.SetDefault(key, out)
	return copyStatuses(out), nil
}

// Invalidate drops the cached status map of a portfolio
func (m *StatusManager) Invalidate(portfolioID int64) {
	m.cache.Delete(portfolioKey(portfolioID))
}

func (m *StatusManager) lookup(ctx context.Context, id int64) (*models.Backtest, error) {
	b, err := m.backtests.GetByID(ctx, id)
	if err != nil {
		return nil, m.translate(id, "status.lookup", err)
	}
	if b.IsDeleted() {
		return nil, apperrors.NotFound(resourceBacktest, id)
	}
	return b, nil
}

func (m *StatusManager) translate(id int64, op string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperrors.NotFound(resourceBacktest, id)
	}
	return apperrors.Internal(op, err)
}

func (m *StatusManager) recorded(b *models.Backtest, field, oldValue, newValue string) {
	m.Invalidate(b.PortfolioID)
	m.audit.LogStatusTransition(b.ID, field, oldValue, newValue)
	if field == "status" {
		metrics.RecordStatusTransition(newValue)
	}
}

func (m *StatusManager) fail(id int64, field string, err error) error {
	m.log.WithFields(logrus.Fields{
		"backtest_id": id,
		"field":       field,
	}).WithError(err).Error("Status write failed")
	return err
}

func portfolioKey(portfolioID int64) string {
	return "portfolio:" + strconv.FormatInt(portfolioID, 10)
}

func copyStatuses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
