package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
	"github.com/yourusername/backtest-orchestrator/internal/rules"
)

// BacktestRequest is the payload for creating or updating a backtest
type BacktestRequest struct {
	Title         string     `json:"title" validate:"required,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	StartAt       time.Time  `json:"start_at" validate:"required"`
	EndAt         time.Time  `json:"end_at" validate:"required,gtfield=StartAt"`
	BenchmarkCode string     `json:"benchmark_code" validate:"omitempty,benchmark"`
	Rules         *RuleInput `json:"rules,omitempty"`
}

// RuleInput carries the stop-loss and take-profit configuration
type RuleInput struct {
	Memo       string            `json:"memo" validate:"max=1000"`
	StopLoss   []models.RuleItem `json:"stop_loss" validate:"dive"`
	TakeProfit []models.RuleItem `json:"take_profit" validate:"dive"`
}

// BacktestService creates, updates and soft-deletes backtests
type BacktestService struct {
	tx         database.TxManager
	backtests  repository.BacktestRepository
	rules      repository.RuleRepository
	status     *StatusManager
	normalizer *rules.Normalizer
	validator  *config.CustomValidator
	log        *logrus.Entry
}

// NewBacktestService creates a backtest service
func NewBacktestService(
	tx database.TxManager,
	backtests repository.BacktestRepository,
	ruleRepo repository.RuleRepository,
	status *StatusManager,
	log *logrus.Logger,
) *BacktestService {
	return &BacktestService{
		tx:         tx,
		backtests:  backtests,
		rules:      ruleRepo,
		status:     status,
		normalizer: rules.NewNormalizer(log),
		validator:  config.NewValidator(),
		log:        log.WithField("component", "backtest_service"),
	}
}

// Create stores a new backtest in CREATED status together with its rules
func (s *BacktestService) Create(ctx context.Context, portfolioID int64, req *BacktestRequest) (*models.Backtest, error) {
	ruleSet, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	b := &models.Backtest{
		PortfolioID:   portfolioID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		BenchmarkCode: optionalString(req.BenchmarkCode),
		Status:        models.StatusCreated,
	}

	if ruleSet != nil {
		b.RuleID = &ruleSet.ID
	}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.backtests.Create(txCtx, b); err != nil {
			return err
		}
		if ruleSet == nil {
			return nil
		}
		ruleSet.BacktestID = b.ID
		return s.rules.Create(txCtx, ruleSet)
	})
	if err != nil {
		return nil, apperrors.Internal("backtest.create", err)
	}

	s.status.Invalidate(portfolioID)
	s.log.WithFields(logrus.Fields{
		"backtest_id":  b.ID,
		"portfolio_id": portfolioID,
	}).Info("Backtest created")
	return b, nil
}

// Update changes the settings of a backtest and resets it to CREATED for a re-run
func (s *BacktestService) Update(ctx context.Context, backtestID, portfolioID int64, req *BacktestRequest) (*models.Backtest, error) {
	ruleSet, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	b, err := s.owned(ctx, backtestID, portfolioID)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusRunning {
		return nil, apperrors.Conflict(resourceBacktest, backtestID, "cannot update a RUNNING backtest")
	}

	b.Title = strings.TrimSpace(req.Title)
	b.Description = req.Description
	b.StartAt = req.StartAt
	b.EndAt = req.EndAt
	b.BenchmarkCode = optionalString(req.BenchmarkCode)

	var staleRuleID *uuid.UUID
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		switch {
		case ruleSet != nil && b.RuleID != nil:
			ruleSet.ID = *b.RuleID
			ruleSet.BacktestID = b.ID
			if err := s.rules.Update(txCtx, ruleSet); err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					return err
				}
				if err := s.rules.Create(txCtx, ruleSet); err != nil {
					return err
				}
				b.RuleID = &ruleSet.ID
			}
		case ruleSet != nil:
			ruleSet.BacktestID = b.ID
			if err := s.rules.Create(txCtx, ruleSet); err != nil {
				return err
			}
			b.RuleID = &ruleSet.ID
		case b.RuleID != nil:
			staleRuleID = b.RuleID
			b.RuleID = nil
		}

		if err := s.backtests.Update(txCtx, b); err != nil {
			return err
		}
		if staleRuleID != nil {
			return s.rules.Delete(txCtx, *staleRuleID)
		}
		return nil
	})
	if err != nil {
		return nil, notFoundOrInternal(err, backtestID, "backtest.update")
	}

	if err := s.status.SetStatus(ctx, backtestID, models.StatusCreated); err != nil {
		return nil, err
	}
	pending := models.ResultPending
	if err := s.status.SetResultStatus(ctx, backtestID, pending); err != nil {
		return nil, err
	}
	b.Status = models.StatusCreated
	b.ResultStatus = &pending

	s.log.WithField("backtest_id", backtestID).Info("Backtest updated")
	return b, nil
}

// Delete soft-deletes a backtest of the given portfolio
func (s *BacktestService) Delete(ctx context.Context, backtestID, portfolioID int64) error {
	if _, err := s.owned(ctx, backtestID, portfolioID); err != nil {
		return err
	}
	if err := s.backtests.SoftDelete(ctx, backtestID); err != nil {
		return notFoundOrInternal(err, backtestID, "backtest.delete")
	}

	s.status.Invalidate(portfolioID)
	s.log.WithField("backtest_id", backtestID).Info("Backtest deleted")
	return nil
}

// prepare validates the request and returns the normalized rule set, nil when there are no rules
func (s *BacktestService) prepare(req *BacktestRequest) (*models.RuleSet, error) {
	if req == nil {
		return nil, apperrors.Validation("body", "request body is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Validation("body", err.Error())
	}
	if req.Rules == nil {
		return nil, nil
	}

	stopLoss, err := s.normalizeRules(req.Rules.StopLoss, models.RuleTypeStopLoss)
	if err != nil {
		return nil, err
	}
	takeProfit, err := s.normalizeRules(req.Rules.TakeProfit, models.RuleTypeTakeProfit)
	if err != nil {
		return nil, err
	}

	set := &models.RuleSet{
		ID:         uuid.New(),
		Memo:       strings.TrimSpace(req.Rules.Memo),
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
	if set.IsEmpty() {
		return nil, nil
	}
	return set, nil
}

func (s *BacktestService) normalizeRules(items []models.RuleItem, want models.RuleType) ([]models.RuleItem, error) {
	normalized, err := s.normalizer.NormalizeItems(items)
	if err != nil {
		return nil, err
	}
	for _, item := range normalized {
		cat, _ := models.ParseRuleCategory(item.Category)
		if cat.Type != want {
			return nil, apperrors.Validation("category",
				fmt.Sprintf("category %s is a %s rule, not %s", cat.Code, cat.Type, want))
		}
	}
	return normalized, nil
}

func (s *BacktestService) owned(ctx context.Context, backtestID, portfolioID int64) (*models.Backtest, error) {
	b, err := s.backtests.GetByID(ctx, backtestID)
	if err != nil {
		return nil, notFoundOrInternal(err, backtestID, "backtest.get")
	}
	if b.PortfolioID != portfolioID {
		return nil, apperrors.NotFound(resourceBacktest, backtestID)
	}
	return b, nil
}

func notFoundOrInternal(err error, id int64, op string) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperrors.NotFound(resourceBacktest, id)
	}
	return apperrors.Internal(op, err)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
