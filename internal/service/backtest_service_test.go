package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

type backtestServiceFixture struct {
	repo  *memBacktests
	rules *MockRuleRepository
	tx    *fakeTx
	svc   *BacktestService
}

func newBacktestServiceFixture(rows ...*models.Backtest) *backtestServiceFixture {
	log := quietLogger()
	f := &backtestServiceFixture{
		repo:  newMemBacktests(rows...),
		rules: &MockRuleRepository{},
		tx:    &fakeTx{},
	}
	status := NewStatusManager(f.repo, time.Minute, log)
	f.svc = NewBacktestService(f.tx, f.repo, f.rules, status, log)
	return f
}

func validRequest() *BacktestRequest {
	return &BacktestRequest{
		Title:   "  Momentum 2023  ",
		StartAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestBacktestService_CreateWithoutRules(t *testing.T) {
	f := newBacktestServiceFixture()

	b, err := f.svc.Create(context.Background(), 7, validRequest())
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, "Momentum 2023", b.Title)
	assert.Equal(t, models.StatusCreated, b.Status)
	assert.Nil(t, b.RuleID)
	f.rules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBacktestService_CreateWithRules(t *testing.T) {
	f := newBacktestServiceFixture()
	f.rules.On("Create", mock.Anything, mock.MatchedBy(func(r *models.RuleSet) bool {
		return r.BacktestID != 0 &&
			len(r.StopLoss) == 1 && r.StopLoss[0].Threshold == "0.150000" &&
			len(r.TakeProfit) == 1 && r.TakeProfit[0].Category == "ONEPROFIT"
	})).Return(nil)

	req := validRequest()
	req.BenchmarkCode = "KOSPI"
	req.Rules = &RuleInput{
		StopLoss:   []models.RuleItem{{Category: "mdd", Threshold: "15%"}},
		TakeProfit: []models.RuleItem{{Category: "ONEPROFIT", Threshold: "0.3"}},
	}

	b, err := f.svc.Create(context.Background(), 7, req)
	require.NoError(t, err)
	require.NotNil(t, b.RuleID)
	assert.Equal(t, "KOSPI", b.Benchmark())
	assert.Equal(t, 1, f.tx.calls)
	f.rules.AssertExpectations(t)
}

func TestBacktestService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *BacktestRequest)
	}{
		{"missing title", func(r *BacktestRequest) { r.Title = "" }},
		{"end before start", func(r *BacktestRequest) { r.EndAt = r.StartAt.Add(-24 * time.Hour) }},
		{"end equals start", func(r *BacktestRequest) { r.EndAt = r.StartAt }},
		{"unknown benchmark", func(r *BacktestRequest) { r.BenchmarkCode = "NASDAQ" }},
		{"unknown rule category", func(r *BacktestRequest) {
			r.Rules = &RuleInput{StopLoss: []models.RuleItem{{Category: "MOON", Threshold: "1"}}}
		}},
		{"take profit category in stop loss list", func(r *BacktestRequest) {
			r.Rules = &RuleInput{StopLoss: []models.RuleItem{{Category: "ONEPROFIT", Threshold: "10%"}}}
		}},
		{"ratio above one", func(r *BacktestRequest) {
			r.Rules = &RuleInput{StopLoss: []models.RuleItem{{Category: "VAR", Threshold: "5"}}}
		}},
		{"empty threshold", func(r *BacktestRequest) {
			r.Rules = &RuleInput{StopLoss: []models.RuleItem{{Category: "BETA", Threshold: ""}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBacktestServiceFixture()
			req := validRequest()
			tt.mutate(req)

			_, err := f.svc.Create(context.Background(), 7, req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Zero(t, f.tx.calls)
		})
	}
}

func TestBacktestService_UpdateRunningConflicts(t *testing.T) {
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7, Status: models.StatusRunning})

	_, err := f.svc.Update(context.Background(), 1, 7, validRequest())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestBacktestService_UpdateResetsStatus(t *testing.T) {
	ruleID := uuid.New()
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7, Status: models.StatusCompleted, RuleID: &ruleID})
	f.rules.On("Delete", mock.Anything, ruleID).Return(nil)

	b, err := f.svc.Update(context.Background(), 1, 7, validRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, b.Status)
	assert.Nil(t, b.RuleID)
	assert.Equal(t, models.StatusCreated, f.repo.status(1))
	f.rules.AssertExpectations(t)
}

func TestBacktestService_UpdateClearsPreviousResultStatus(t *testing.T) {
	liquidated := models.ResultLiquidated
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7, Status: models.StatusCompleted, ResultStatus: &liquidated})

	b, err := f.svc.Update(context.Background(), 1, 7, validRequest())
	require.NoError(t, err)
	require.NotNil(t, b.ResultStatus)
	assert.Equal(t, models.ResultPending, *b.ResultStatus)
	assert.Equal(t, models.ResultPending, f.repo.resultStatus(1))
}

func TestBacktestService_UpdateReplacesRules(t *testing.T) {
	ruleID := uuid.New()
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7, Status: models.StatusFailed, RuleID: &ruleID})
	f.rules.On("Update", mock.Anything, mock.MatchedBy(func(r *models.RuleSet) bool {
		return r.ID == ruleID && r.BacktestID == 1
	})).Return(nil)

	req := validRequest()
	req.Rules = &RuleInput{StopLoss: []models.RuleItem{{Category: "LOSS_LIMIT", Threshold: "10%"}}}

	b, err := f.svc.Update(context.Background(), 1, 7, req)
	require.NoError(t, err)
	assert.Equal(t, ruleID, *b.RuleID)
	f.rules.AssertExpectations(t)
}

func TestBacktestService_WrongPortfolioIsNotFound(t *testing.T) {
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7})

	_, err := f.svc.Update(context.Background(), 1, 8, validRequest())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), 1, 8), apperrors.ErrNotFound)
}

func TestBacktestService_Delete(t *testing.T) {
	f := newBacktestServiceFixture(&models.Backtest{ID: 1, PortfolioID: 7})

	require.NoError(t, f.svc.Delete(context.Background(), 1, 7))
	_, err := f.repo.GetByID(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), 1, 7), apperrors.ErrNotFound)
}
