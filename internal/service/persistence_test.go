package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

type persistenceFixture struct {
	tx        *fakeTx
	snapshots *MockSnapshotRepository
	holdings  *MockHoldingSnapshotRepository
	execLogs  *MockExecutionLogRepository
	p         *PersistenceCoordinator
}

func newPersistenceFixture() *persistenceFixture {
	f := &persistenceFixture{
		tx:        &fakeTx{},
		snapshots: &MockSnapshotRepository{},
		holdings:  &MockHoldingSnapshotRepository{},
		execLogs:  &MockExecutionLogRepository{},
	}
	f.p = NewPersistenceCoordinator(f.tx, f.snapshots, f.holdings, f.execLogs, 50, quietLogger())
	return f
}

func successPayload() *models.CallbackPayload {
	day := models.EngineTime{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	return &models.CallbackPayload{
		BacktestID: int64Ptr(9),
		Success:    boolPtr(true),
		PortfolioSnapshot: &models.PortfolioSnapshotPayload{
			BaseValue:     1000,
			CurrentValue:  1100,
			ExecutionTime: "1.666s",
		},
		Metrics: &models.MetricsPayload{TotalReturn: 0.1, SharpeRatio: 1.2},
		ResultSummary: []models.DailyResultPayload{{
			Date: day,
			Stocks: []models.DailyStockPayload{
				{StockCode: "005930", ClosePrice: 70000.5, Quantity: 3},
				{StockCode: "000660", ClosePrice: 120000, Quantity: 1},
			},
		}},
		ExecutionLogs: []models.ExecutionLogPayload{
			{Date: &day, Action: "buy", Reason: "initial"},
			{Action: "STOP_LOSS", Category: "MDD", TriggerValue: floatPtr(0.21), ThresholdValue: floatPtr(0.2)},
		},
	}
}

func TestPersist_Success(t *testing.T) {
	f := newPersistenceFixture()
	f.snapshots.On("Create", mock.Anything, mock.AnythingOfType("*models.PortfolioSnapshot")).Return(int64(42), nil)
	f.execLogs.On("InsertBatch", mock.Anything, mock.MatchedBy(func(logs []models.ExecutionLog) bool {
		return len(logs) == 2 && logs[0].PortfolioSnapshotID == 42 && logs[1].ActionType == models.ActionStopLoss
	}), 50).Return(nil)
	f.holdings.On("InsertBatch", mock.Anything, mock.MatchedBy(func(h []models.HoldingSnapshot) bool {
		return len(h) == 2 && h[0].PortfolioSnapshotID == 42
	}), 50).Return(nil)

	id, err := f.p.Persist(context.Background(), 9, successPayload())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 2, f.tx.calls)
	f.snapshots.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.execLogs.AssertExpectations(t)
	f.holdings.AssertExpectations(t)
}

func TestPersist_DetailFailureCompensates(t *testing.T) {
	f := newPersistenceFixture()
	f.snapshots.On("Create", mock.Anything, mock.Anything).Return(int64(42), nil)
	f.snapshots.On("Delete", mock.Anything, int64(42)).Return(nil)
	f.execLogs.On("InsertBatch", mock.Anything, mock.Anything, 50).Return(nil)
	f.holdings.On("InsertBatch", mock.Anything, mock.Anything, 50).Return(errors.New("disk full"))

	id, err := f.p.Persist(context.Background(), 9, successPayload())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Contains(t, err.Error(), "phase2")
	assert.Zero(t, id)
	f.snapshots.AssertCalled(t, "Delete", mock.Anything, int64(42))
}

func TestPersist_CompensationFailureKeepsOriginalError(t *testing.T) {
	f := newPersistenceFixture()
	f.snapshots.On("Create", mock.Anything, mock.Anything).Return(int64(42), nil)
	f.snapshots.On("Delete", mock.Anything, int64(42)).Return(errors.New("connection reset"))
	f.execLogs.On("InsertBatch", mock.Anything, mock.Anything, 50).Return(errors.New("constraint violation"))

	_, err := f.p.Persist(context.Background(), 9, successPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	f.holdings.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersist_UnknownActionCompensates(t *testing.T) {
	f := newPersistenceFixture()
	f.snapshots.On("Create", mock.Anything, mock.Anything).Return(int64(42), nil)
	f.snapshots.On("Delete", mock.Anything, int64(42)).Return(nil)

	payload := successPayload()
	payload.ExecutionLogs = append(payload.ExecutionLogs, models.ExecutionLogPayload{Action: "hodl"})

	_, err := f.p.Persist(context.Background(), 9, payload)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.snapshots.AssertCalled(t, "Delete", mock.Anything, int64(42))
	f.execLogs.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestDiscard(t *testing.T) {
	t.Run("deletes summary", func(t *testing.T) {
		f := newPersistenceFixture()
		f.snapshots.On("Delete", mock.Anything, int64(42)).Return(nil)

		require.NoError(t, f.p.Discard(context.Background(), 9, 42, errors.New("status write failed")))
		f.snapshots.AssertExpectations(t)
	})

	t.Run("delete failure is reported", func(t *testing.T) {
		f := newPersistenceFixture()
		f.snapshots.On("Delete", mock.Anything, int64(42)).Return(errors.New("db down"))

		err := f.p.Discard(context.Background(), 9, 42, errors.New("status write failed"))
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.Contains(t, err.Error(), "discard")
	})
}

func TestPersist_SummaryFailureWritesNothing(t *testing.T) {
	f := newPersistenceFixture()
	f.snapshots.On("Create", mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout"))

	_, err := f.p.Persist(context.Background(), 9, successPayload())
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Contains(t, err.Error(), "phase1")
	f.snapshots.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.execLogs.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestPersist_MissingSnapshot(t *testing.T) {
	f := newPersistenceFixture()
	payload := successPayload()
	payload.PortfolioSnapshot = nil

	_, err := f.p.Persist(context.Background(), 9, payload)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.snapshots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBuildSnapshot(t *testing.T) {
	p := newPersistenceFixture().p
	payload := successPayload()
	payload.BenchmarkMetrics = &models.BenchmarkMetricsPayload{Alpha: floatPtr(0.03)}

	s, err := p.BuildSnapshot(9, payload)
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.BacktestID)
	assert.Equal(t, 1100.0, s.CurrentValue)
	require.NotNil(t, s.ExecutionTime)
	assert.InDelta(t, 1.666, *s.ExecutionTime, 1e-9)

	blob, err := s.DecodeMetrics()
	require.NoError(t, err)
	assert.Equal(t, 1.2, blob.SharpeRatio)
	require.NotNil(t, blob.Benchmark)
	assert.Equal(t, 0.03, *blob.Benchmark.Alpha)
	assert.Contains(t, string(s.Metrics), `"sharpeRatio"`)
}

func TestBuildSnapshot_FallsBackToTopLevelExecutionTime(t *testing.T) {
	p := newPersistenceFixture().p
	payload := successPayload()
	payload.PortfolioSnapshot.ExecutionTime = ""
	payload.ExecutionTime = floatPtr(2.5)

	s, err := p.BuildSnapshot(9, payload)
	require.NoError(t, err)
	assert.Equal(t, 2.5, *s.ExecutionTime)
}

func TestBuildExecutionLogs_MissingDateUsesNow(t *testing.T) {
	p := newPersistenceFixture().p
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	logs, err := p.BuildExecutionLogs(9, 42, []models.ExecutionLogPayload{{Action: "sell"}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, fixed, logs[0].LogDate)
	assert.Equal(t, models.ActionSell, logs[0].ActionType)
	assert.Zero(t, logs[0].TriggerValue)
}

func TestBuildHoldingSnapshots(t *testing.T) {
	rows := BuildHoldingSnapshots(42, successPayload().ResultSummary)
	require.Len(t, rows, 2)

	assert.True(t, decimal.RequireFromString("210001.5").Equal(rows[0].Value))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rows[0].RecordedAt)
	assert.Equal(t, "000660", rows[1].StockCode)
}
