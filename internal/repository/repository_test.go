package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

func TestNewRepositoriesRequiresDB(t *testing.T) {
	_, err := NewRepositories(nil)
	assert.Error(t, err)
}

func setupRepos(t *testing.T) (*Repositories, context.Context) {
	t.Helper()
	db := database.SetupTestDB(t)
	repos, err := NewRepositories(db)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return repos, ctx
}

func newTestBacktest() *models.Backtest {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return &models.Backtest{
		PortfolioID: 1,
		Title:       "integration",
		StartAt:     start,
		EndAt:       start.AddDate(0, 3, 0),
	}
}

func TestBacktestRepositoryMarkRunningGuard(t *testing.T) {
	repos, ctx := setupRepos(t)

	b := newTestBacktest()
	require.NoError(t, repos.Backtest.Create(ctx, b))
	assert.Equal(t, models.StatusCreated, b.Status)

	require.NoError(t, repos.Backtest.MarkRunning(ctx, b.ID))
	assert.ErrorIs(t, repos.Backtest.MarkRunning(ctx, b.ID), models.ErrStatusConflict)
	assert.ErrorIs(t, repos.Backtest.MarkRunning(ctx, -1), models.ErrNotFound)

	status, err := repos.Backtest.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, status)

	require.NoError(t, repos.Backtest.SoftDelete(ctx, b.ID))
	_, err = repos.Backtest.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSnapshotRepositoryCascade(t *testing.T) {
	repos, ctx := setupRepos(t)

	b := newTestBacktest()
	require.NoError(t, repos.Backtest.Create(ctx, b))

	id, err := repos.Snapshot.Create(ctx, &models.PortfolioSnapshot{
		BacktestID:   b.ID,
		BaseValue:    1000,
		CurrentValue: 1100,
		Metrics:      []byte(`{"totalReturn":0.1}`),
	})
	require.NoError(t, err)

	logs := make([]models.ExecutionLog, 5)
	for i := range logs {
		logs[i] = models.ExecutionLog{
			PortfolioSnapshotID: id,
			BacktestID:          b.ID,
			LogDate:             b.StartAt.AddDate(0, 0, i),
			ActionType:          models.ActionBuy,
			CreatedAt:           time.Now(),
		}
	}
	require.NoError(t, repos.ExecutionLog.InsertBatch(ctx, logs, 2))

	stored, err := repos.ExecutionLog.ListBySnapshot(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	require.NoError(t, repos.Snapshot.Delete(ctx, id))
	stored, err = repos.ExecutionLog.ListBySnapshot(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
