package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is the result summary of one completed run
type PortfolioSnapshot struct {
	ID              int64           `db:"id" json:"id"`
	BacktestID      int64           `db:"backtest_id" json:"backtest_id"`
	BaseValue       float64         `db:"base_value" json:"base_value"`
	CurrentValue    float64         `db:"current_value" json:"current_value"`
	Metrics         json.RawMessage `db:"metrics" json:"metrics,omitempty"`
	StartAt         *time.Time      `db:"start_at" json:"start_at,omitempty"`
	EndAt           *time.Time      `db:"end_at" json:"end_at,omitempty"`
	ExecutionTime   *float64        `db:"execution_time" json:"execution_time,omitempty"`
	ReportContent   *string         `db:"report_content" json:"report_content,omitempty"`
	ReportCreatedAt *time.Time      `db:"report_created_at" json:"report_created_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// MetricsBlob is the stored shape of PortfolioSnapshot.Metrics
type MetricsBlob struct {
	TotalReturn      float64        `json:"totalReturn"`
	AnnualizedReturn float64        `json:"annualizedReturn"`
	Volatility       float64        `json:"volatility"`
	SharpeRatio      float64        `json:"sharpeRatio"`
	MaxDrawdown      float64        `json:"maxDrawdown"`
	VaR95            float64        `json:"var95"`
	VaR99            float64        `json:"var99"`
	CVaR95           float64        `json:"cvar95"`
	CVaR99           float64        `json:"cvar99"`
	WinRate          float64        `json:"winRate"`
	ProfitLossRatio  float64        `json:"profitLossRatio"`
	Benchmark        *BenchmarkBlob `json:"benchmark,omitempty"`
}

// BenchmarkBlob is the nested benchmark comparison inside MetricsBlob
type BenchmarkBlob struct {
	BenchmarkTotalReturn  *float64 `json:"benchmark_total_return"`
	BenchmarkVolatility   *float64 `json:"benchmark_volatility"`
	BenchmarkMaxPrice     *float64 `json:"benchmark_max_price"`
	BenchmarkMinPrice     *float64 `json:"benchmark_min_price"`
	Alpha                 *float64 `json:"alpha"`
	BenchmarkDailyAverage *float64 `json:"benchmark_daily_average"`
}

// DecodeMetrics parses the stored metrics blob; an empty blob yields nil
func (s *PortfolioSnapshot) DecodeMetrics() (*MetricsBlob, error) {
	if len(s.Metrics) == 0 || string(s.Metrics) == "null" {
		return nil, nil
	}
	var blob MetricsBlob
	if err := json.Unmarshal(s.Metrics, &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

// HoldingSnapshot is one stock position on one day of a run
type HoldingSnapshot struct {
	ID                  int64           `db:"id" json:"id"`
	PortfolioSnapshotID int64           `db:"portfolio_snapshot_id" json:"portfolio_snapshot_id"`
	StockCode           string          `db:"stock_code" json:"stock_code"`
	Weight              float64         `db:"weight" json:"weight"`
	Price               float64         `db:"price" json:"price"`
	Quantity            int             `db:"quantity" json:"quantity"`
	Value               decimal.Decimal `db:"value" json:"value"`
	RecordedAt          time.Time       `db:"recorded_at" json:"recorded_at"`
	Contribution        float64         `db:"contribution" json:"contribution"`
	DailyRatio          float64         `db:"daily_ratio" json:"daily_ratio"`
}
