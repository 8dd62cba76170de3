package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// engineTimeLayouts are tried in order when decoding engine timestamps
var engineTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// EngineTime decodes the engine's timestamps, which usually carry no zone.
// Zone-less values are read as UTC.
type EngineTime struct {
	time.Time
}

// ParseEngineTime parses a timestamp in any of the engine's layouts
func ParseEngineTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range engineTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %q", raw)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *EngineTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := ParseEngineTime(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (t EngineTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

// Ptr returns nil for a zero time
func (t *EngineTime) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// CallbackPayload is the body the engine posts when a run finishes
type CallbackPayload struct {
	JobID             string                    `json:"job_id"`
	Success           *bool                     `json:"success"`
	PortfolioSnapshot *PortfolioSnapshotPayload `json:"portfolio_snapshot,omitempty"`
	Metrics           *MetricsPayload           `json:"metrics,omitempty"`
	ResultSummary     []DailyResultPayload      `json:"result_summary,omitempty"`
	Error             *EngineErrorPayload       `json:"error,omitempty"`
	ExecutionTime     *float64                  `json:"execution_time,omitempty"`
	BacktestID        *int64                    `json:"backtest_id"`
	ExecutionLogs     []ExecutionLogPayload     `json:"execution_logs,omitempty"`
	ResultStatus      string                    `json:"result_status,omitempty"`
	BenchmarkInfo     *BenchmarkInfoPayload     `json:"benchmark_info,omitempty"`
	BenchmarkMetrics  *BenchmarkMetricsPayload  `json:"benchmark_metrics,omitempty"`
	RiskFreeRateInfo  *RiskFreeRatePayload      `json:"risk_free_rate_info,omitempty"`
	Timestamp         string                    `json:"timestamp,omitempty"`
}

// Succeeded reports whether the engine flagged success and sent no error block
func (p *CallbackPayload) Succeeded() bool {
	return p != nil && p.Success != nil && *p.Success && p.Error == nil
}

// ErrorMessage returns the engine's error message, if any
func (p *CallbackPayload) ErrorMessage() string {
	if p == nil || p.Error == nil {
		return ""
	}
	return p.Error.Message
}

// PortfolioSnapshotPayload is the engine's summary of the simulated portfolio
type PortfolioSnapshotPayload struct {
	ID            *int64           `json:"id,omitempty"`
	PortfolioID   *int64           `json:"portfolio_id,omitempty"`
	BaseValue     float64          `json:"base_value"`
	CurrentValue  float64          `json:"current_value"`
	StartAt       *EngineTime      `json:"start_at,omitempty"`
	EndAt         *EngineTime      `json:"end_at,omitempty"`
	CreatedAt     *EngineTime      `json:"created_at,omitempty"`
	ExecutionTime string           `json:"execution_time,omitempty"`
	Holdings      []HoldingPayload `json:"holdings,omitempty"`
}

// ExecutionSeconds parses values such as "1.666s"; blank or garbage yields nil
func (p *PortfolioSnapshotPayload) ExecutionSeconds() *float64 {
	if p == nil || strings.TrimSpace(p.ExecutionTime) == "" {
		return nil
	}
	numeric := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, p.ExecutionTime)
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return nil
	}
	return &v
}

// HoldingPayload is one position in the engine's snapshot
type HoldingPayload struct {
	ID       *int64 `json:"id,omitempty"`
	StockID  string `json:"stock_id"`
	Quantity int    `json:"quantity"`
}

// MetricsPayload carries the engine's risk and return metrics
type MetricsPayload struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	VaR95            float64 `json:"var_95"`
	VaR99            float64 `json:"var_99"`
	CVaR95           float64 `json:"cvar_95"`
	CVaR99           float64 `json:"cvar_99"`
	WinRate          float64 `json:"win_rate"`
	ProfitLossRatio  float64 `json:"profit_loss_ratio"`
}

// DailyResultPayload holds every stock position for one trading day
type DailyResultPayload struct {
	Date   EngineTime          `json:"date"`
	Stocks []DailyStockPayload `json:"stocks"`
}

// DailyStockPayload is one stock on one trading day
type DailyStockPayload struct {
	StockCode             string     `json:"stock_code"`
	Date                  EngineTime `json:"date"`
	ClosePrice            float64    `json:"close_price"`
	DailyReturn           float64    `json:"daily_return"`
	PortfolioWeight       float64    `json:"portfolio_weight"`
	PortfolioContribution float64    `json:"portfolio_contribution"`
	Quantity              int        `json:"quantity"`
}

// ExecutionLogPayload is one trade-log entry reported by the engine
type ExecutionLogPayload struct {
	Date           *EngineTime `json:"date,omitempty"`
	Action         string      `json:"action"`
	Category       string      `json:"category,omitempty"`
	TriggerValue   *float64    `json:"value,omitempty"`
	ThresholdValue *float64    `json:"threshold,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	PortfolioValue *float64    `json:"portfolio_value,omitempty"`
}

// EngineErrorPayload describes why a run failed
type EngineErrorPayload struct {
	ErrorType          string               `json:"error_type"`
	Message            string               `json:"message"`
	MissingData        []MissingDataPayload `json:"missing_data,omitempty"`
	RequestedPeriod    string               `json:"requested_period,omitempty"`
	TotalStocks        *int                 `json:"total_stocks,omitempty"`
	MissingStocksCount *int                 `json:"missing_stocks_count,omitempty"`
	Timestamp          string               `json:"timestamp,omitempty"`
}

// MissingDataPayload names a stock without price data for the requested period
type MissingDataPayload struct {
	StockCode          string `json:"stock_code"`
	StartDate          string `json:"start_date,omitempty"`
	EndDate            string `json:"end_date,omitempty"`
	AvailableDateRange string `json:"available_date_range,omitempty"`
}

// BenchmarkInfoPayload describes the benchmark index used by the run
type BenchmarkInfoPayload struct {
	BenchmarkCode    string          `json:"benchmark_code"`
	LatestPrice      *float64        `json:"latest_price,omitempty"`
	LatestDate       *EngineTime     `json:"latest_date,omitempty"`
	DataRange        *DateRangeBlock `json:"data_range,omitempty"`
	LatestChangeRate *float64        `json:"latest_change_rate,omitempty"`
}

// DateRangeBlock is a start/end pair
type DateRangeBlock struct {
	StartDate *EngineTime `json:"start_date,omitempty"`
	EndDate   *EngineTime `json:"end_date,omitempty"`
}

// BenchmarkMetricsPayload compares the portfolio with its benchmark
type BenchmarkMetricsPayload struct {
	BenchmarkTotalReturn  *float64 `json:"benchmark_total_return"`
	BenchmarkVolatility   *float64 `json:"benchmark_volatility"`
	BenchmarkMaxPrice     *float64 `json:"benchmark_max_price"`
	BenchmarkMinPrice     *float64 `json:"benchmark_min_price"`
	Alpha                 *float64 `json:"alpha"`
	BenchmarkDailyAverage *float64 `json:"benchmark_daily_average"`
}

// RiskFreeRatePayload describes the risk-free rate the engine applied
type RiskFreeRatePayload struct {
	RateType      string          `json:"rate_type,omitempty"`
	AvgAnnualRate *float64        `json:"avg_annual_rate,omitempty"`
	DataPoints    *int            `json:"data_points,omitempty"`
	DecisionInfo  json.RawMessage `json:"decision_info,omitempty"`
	RateInfo      json.RawMessage `json:"rate_info,omitempty"`
}

// NormalizedResultStatus maps the engine's result_status, defaulting to COMPLETED
func (p *CallbackPayload) NormalizedResultStatus() ResultStatus {
	return ParseResultStatus(strings.ToUpper(strings.TrimSpace(p.ResultStatus)))
}
