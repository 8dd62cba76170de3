package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

func TestStatusManager_SetStatus(t *testing.T) {
	repo := newMemBacktests(&models.Backtest{ID: 1, PortfolioID: 7})
	m := NewStatusManager(repo, time.Minute, quietLogger())

	require.NoError(t, m.SetStatus(context.Background(), 1, models.StatusFailed))
	assert.Equal(t, models.StatusFailed, repo.status(1))

	// terminal statuses can be overwritten
	require.NoError(t, m.SetStatus(context.Background(), 1, models.StatusCompleted))
	assert.Equal(t, models.StatusCompleted, repo.status(1))
}

func TestStatusManager_SetStatusUnknownBacktest(t *testing.T) {
	m := NewStatusManager(newMemBacktests(), time.Minute, quietLogger())

	err := m.SetStatus(context.Background(), 404, models.StatusFailed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStatusManager_MarkRunning(t *testing.T) {
	repo := newMemBacktests(&models.Backtest{ID: 1, PortfolioID: 7})
	m := NewStatusManager(repo, time.Minute, quietLogger())

	require.NoError(t, m.MarkRunning(context.Background(), 1))
	assert.Equal(t, models.StatusRunning, repo.status(1))

	err := m.MarkRunning(context.Background(), 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, []models.BacktestStatus{models.StatusRunning}, repo.transitions(1))
}

func TestStatusManager_SetResultStatus(t *testing.T) {
	repo := newMemBacktests(&models.Backtest{ID: 1, PortfolioID: 7})
	m := NewStatusManager(repo, time.Minute, quietLogger())

	require.NoError(t, m.SetResultStatus(context.Background(), 1, models.ResultLiquidated))
	assert.Equal(t, models.ResultLiquidated, repo.resultStatus(1))
	assert.Equal(t, models.StatusCreated, repo.status(1))
}

func TestStatusManager_StatusesByPortfolioCached(t *testing.T) {
	repo := newMemBacktests(
		&models.Backtest{ID: 1, PortfolioID: 7},
		&models.Backtest{ID: 2, PortfolioID: 7, Status: models.StatusCompleted},
		&models.Backtest{ID: 3, PortfolioID: 8},
	)
	m := NewStatusManager(repo, time.Minute, quietLogger())
	ctx := context.Background()

	statuses, err := m.StatusesByPortfolio(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "CREATED", "2": "COMPLETED"}, statuses)

	statuses["1"] = "tampered"
	again, err := m.StatusesByPortfolio(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "CREATED", again["1"])
	assert.Equal(t, 1, repo.statusReads)

	require.NoError(t, m.MarkRunning(ctx, 1))
	fresh, err := m.StatusesByPortfolio(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", fresh["1"])
	assert.Equal(t, 2, repo.statusReads)
}

func TestStatusManager_GetStatus(t *testing.T) {
	repo := newMemBacktests(&models.Backtest{ID: 1, Status: models.StatusCompleted})
	m := NewStatusManager(repo, time.Minute, quietLogger())

	status, err := m.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, status)

	_, err = m.GetStatus(context.Background(), 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
