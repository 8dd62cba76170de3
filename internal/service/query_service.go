package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/analytics"
	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
)

const periodLayout = "2006-01-02"

// BacktestDetail is the full result view of a completed backtest
type BacktestDetail struct {
	BacktestID    int64               `json:"backtest_id"`
	SnapshotID    int64               `json:"snapshot_id"`
	Title         string              `json:"title"`
	Period        string              `json:"period"`
	Status        string              `json:"status"`
	ResultStatus  string              `json:"result_status,omitempty"`
	ExecutionTime *float64            `json:"execution_time,omitempty"`
	BenchmarkCode string              `json:"benchmark_code,omitempty"`
	BenchmarkName string              `json:"benchmark_name,omitempty"`
	BaseValue     float64             `json:"base_value"`
	CurrentValue  float64             `json:"current_value"`
	Metrics       *models.MetricsBlob `json:"metrics,omitempty"`
	DailyEquity   []DailyEquity       `json:"daily_equity"`
	Holdings      []HoldingView       `json:"holdings"`
	Report        *string             `json:"report,omitempty"`
	Rules         *models.RuleSet     `json:"rules,omitempty"`
}

// DailyEquity is the value of every holding on one day
type DailyEquity struct {
	Date   string             `json:"date"`
	Total  float64            `json:"total"`
	Stocks map[string]float64 `json:"stocks"`
}

// HoldingView is one position on the last recorded day
type HoldingView struct {
	StockCode string  `json:"stock_code"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
}

// BacktestMetadata is the configuration of a backtest
type BacktestMetadata struct {
	ID            int64           `json:"id"`
	PortfolioID   int64           `json:"portfolio_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartAt       time.Time       `json:"start_at"`
	EndAt         time.Time       `json:"end_at"`
	CreatedAt     time.Time       `json:"created_at"`
	BenchmarkCode string          `json:"benchmark_code,omitempty"`
	Status        string          `json:"status"`
	Rules         *models.RuleSet `json:"rules,omitempty"`
}

// QueryService serves read-only views of backtests
type QueryService struct {
	backtests repository.BacktestRepository
	rules     repository.RuleRepository
	snapshots repository.SnapshotRepository
	holdings  repository.HoldingSnapshotRepository
	status    *StatusManager
	log       *logrus.Entry
}

// NewQueryService creates a query service
func NewQueryService(repos *repository.Repositories, status *StatusManager, log *logrus.Logger) *QueryService {
	return &QueryService{
		backtests: repos.Backtest,
		rules:     repos.Rule,
		snapshots: repos.Snapshot,
		holdings:  repos.HoldingSnapshot,
		status:    status,
		log:       log.WithField("component", "query_service"),
	}
}

// List returns the live backtests of a portfolio
func (q *QueryService) List(ctx context.Context, portfolioID int64) ([]*models.Backtest, error) {
	list, err := q.backtests.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.Internal("backtest.list", err)
	}
	if list == nil {
		list = []*models.Backtest{}
	}
	return list, nil
}

// Statuses maps backtest ids of a portfolio to their status
func (q *QueryService) Statuses(ctx context.Context, portfolioID int64) (map[string]string, error) {
	return q.status.StatusesByPortfolio(ctx, portfolioID)
}

// Status returns the status of one backtest
func (q *QueryService) Status(ctx context.Context, backtestID int64) (models.BacktestStatus, error) {
	return q.status.GetStatus(ctx, backtestID)
}

// Metadata returns the settings and rules of a backtest
func (q *QueryService) Metadata(ctx context.Context, backtestID int64) (*BacktestMetadata, error) {
	b, err := q.backtests.GetByID(ctx, backtestID)
	if err != nil {
		return nil, notFoundOrInternal(err, backtestID, "backtest.get")
	}

	return &BacktestMetadata{
		ID:            b.ID,
		PortfolioID:   b.PortfolioID,
		Title:         b.Title,
		Description:   b.Description,
		StartAt:       b.StartAt,
		EndAt:         b.EndAt,
		CreatedAt:     b.CreatedAt,
		BenchmarkCode: b.Benchmark(),
		Status:        string(b.Status),
		Rules:         q.loadRules(ctx, b),
	}, nil
}

// Detail returns the latest result of a backtest
func (q *QueryService) Detail(ctx context.Context, backtestID int64) (*BacktestDetail, error) {
	b, err := q.backtests.GetByID(ctx, backtestID)
	if err != nil {
		return nil, notFoundOrInternal(err, backtestID, "backtest.get")
	}

	snapshot, err := q.snapshots.GetLatestByBacktest(ctx, backtestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NotFound("backtest result", backtestID)
		}
		return nil, apperrors.Internal("snapshot.get", err)
	}

	holdings, err := q.holdings.ListBySnapshot(ctx, snapshot.ID)
	if err != nil {
		return nil, apperrors.Internal("holdings.list", err)
	}

	metricsBlob, err := snapshot.DecodeMetrics()
	if err != nil {
		q.log.WithField("snapshot_id", snapshot.ID).WithError(err).Warn("Stored metrics could not be decoded")
	}

	detail := &BacktestDetail{
		BacktestID:    b.ID,
		SnapshotID:    snapshot.ID,
		Title:         b.Title,
		Period:        b.StartAt.Format(periodLayout) + " ~ " + b.EndAt.Format(periodLayout),
		Status:        string(b.Status),
		ExecutionTime: snapshot.ExecutionTime,
		BenchmarkCode: b.Benchmark(),
		BaseValue:     snapshot.BaseValue,
		CurrentValue:  snapshot.CurrentValue,
		Metrics:       metricsBlob,
		DailyEquity:   dailyEquity(holdings),
		Holdings:      holdingViews(analytics.LatestHoldings(holdings)),
		Report:        snapshot.ReportContent,
		Rules:         q.loadRules(ctx, b),
	}
	if b.ResultStatus != nil {
		detail.ResultStatus = string(*b.ResultStatus)
	}
	if idx, err := models.ParseBenchmarkIndex(b.Benchmark()); err == nil {
		detail.BenchmarkName = idx.DisplayName()
	}
	return detail, nil
}

// loadRules returns nil when the backtest has no rules or they cannot be read
func (q *QueryService) loadRules(ctx context.Context, b *models.Backtest) *models.RuleSet {
	if b.RuleID == nil {
		return nil
	}
	set, err := q.rules.GetByID(ctx, *b.RuleID)
	if err != nil {
		q.log.WithFields(logrus.Fields{
			"backtest_id": b.ID,
			"rule_id":     b.RuleID.String(),
		}).WithError(err).Warn("Backtest rules unavailable")
		return nil
	}
	return set
}

func dailyEquity(holdings []models.HoldingSnapshot) []DailyEquity {
	byDay := make(map[string]*DailyEquity)
	for _, h := range holdings {
		key := h.RecordedAt.UTC().Format(periodLayout)
		day, ok := byDay[key]
		if !ok {
			day = &DailyEquity{Date: key, Stocks: make(map[string]float64)}
			byDay[key] = day
		}
		v := h.Value.InexactFloat64()
		day.Stocks[h.StockCode] += v
		day.Total += v
	}

	out := make([]DailyEquity, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func holdingViews(holdings []models.HoldingSnapshot) []HoldingView {
	out := make([]HoldingView, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, HoldingView{
			StockCode: h.StockCode,
			Quantity:  h.Quantity,
			Price:     h.Price,
			Value:     h.Value.InexactFloat64(),
			Weight:    h.Weight,
		})
	}
	return out
}
