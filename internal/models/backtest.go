package models

import (
	"time"

	"github.com/google/uuid"
)

// BacktestStatus is the coarse lifecycle status of a backtest job
type BacktestStatus string

const (
	StatusCreated   BacktestStatus = "CREATED"
	StatusRunning   BacktestStatus = "RUNNING"
	StatusCompleted BacktestStatus = "COMPLETED"
	StatusFailed    BacktestStatus = "FAILED"
)

// IsTerminal reports whether a run has finished
func (s BacktestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ResultStatus is the engine's fine-grained classification of a finished run
type ResultStatus string

const (
	ResultPending    ResultStatus = "PENDING"
	ResultCompleted  ResultStatus = "COMPLETED"
	ResultLiquidated ResultStatus = "LIQUIDATED"
	ResultFailed     ResultStatus = "FAILED"
)

// ParseResultStatus maps the engine's result_status string, defaulting to COMPLETED
func ParseResultStatus(raw string) ResultStatus {
	switch ResultStatus(raw) {
	case ResultPending, ResultCompleted, ResultLiquidated, ResultFailed:
		return ResultStatus(raw)
	default:
		return ResultCompleted
	}
}

// Backtest represents one backtest job and its lifecycle status
type Backtest struct {
	ID              int64          `db:"id" json:"id"`
	PortfolioID     int64          `db:"portfolio_id" json:"portfolio_id"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	StartAt         time.Time      `db:"start_at" json:"start_at"`
	EndAt           time.Time      `db:"end_at" json:"end_at"`
	RuleID          *uuid.UUID     `db:"rule_id" json:"rule_id,omitempty"`
	BenchmarkCode   *string        `db:"benchmark_code" json:"benchmark_code,omitempty"`
	Status          BacktestStatus `db:"status" json:"status"`
	ResultStatus    *ResultStatus  `db:"result_status" json:"result_status,omitempty"`
	StatusUpdatedAt time.Time      `db:"status_updated_at" json:"status_updated_at"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time     `db:"deleted_at" json:"-"`
}

// IsDeleted reports whether the backtest was soft deleted
func (b *Backtest) IsDeleted() bool {
	return b.DeletedAt != nil
}

// Benchmark returns the benchmark code or an empty string
func (b *Backtest) Benchmark() string {
	if b.BenchmarkCode == nil {
		return ""
	}
	return *b.BenchmarkCode
}

// BenchmarkIndex enumerates the supported market indices
type BenchmarkIndex string

const (
	BenchmarkKOSPI  BenchmarkIndex = "KOSPI"
	BenchmarkKOSDAQ BenchmarkIndex = "KOSDAQ"
)

// DisplayName returns a human readable index name
func (b BenchmarkIndex) DisplayName() string {
	switch b {
	case BenchmarkKOSPI:
		return "KOSPI Composite"
	case BenchmarkKOSDAQ:
		return "KOSDAQ Composite"
	default:
		return string(b)
	}
}

// ParseBenchmarkIndex validates a benchmark code
func ParseBenchmarkIndex(code string) (BenchmarkIndex, error) {
	switch BenchmarkIndex(code) {
	case BenchmarkKOSPI, BenchmarkKOSDAQ:
		return BenchmarkIndex(code), nil
	default:
		return "", ErrInvalidBenchmark
	}
}

// Holding is one position of a portfolio as sent to the engine
type Holding struct {
	StockCode string `db:"stock_code" json:"stock_code"`
	Quantity  int    `db:"quantity" json:"quantity"`
}
