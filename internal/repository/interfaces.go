package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// BacktestRepository defines the interface for backtest job data access.
// Lookups exclude soft-deleted rows and return models.ErrNotFound for them.
type BacktestRepository interface {
	Create(ctx context.Context, backtest *models.Backtest) error
	GetByID(ctx context.Context, id int64) (*models.Backtest, error)
	ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Backtest, error)
	Update(ctx context.Context, backtest *models.Backtest) error
	SoftDelete(ctx context.Context, id int64) error

	// Status writes commit on their own, outside any transaction carried by ctx
	UpdateStatus(ctx context.Context, id int64, status models.BacktestStatus) error
	MarkRunning(ctx context.Context, id int64) error
	UpdateResultStatus(ctx context.Context, id int64, status models.ResultStatus) error
	GetStatus(ctx context.Context, id int64) (models.BacktestStatus, error)
	StatusesByPortfolio(ctx context.Context, portfolioID int64) (map[int64]models.BacktestStatus, error)
	ListRunningSince(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// RuleRepository defines the interface for rule set data access
type RuleRepository interface {
	Create(ctx context.Context, rules *models.RuleSet) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RuleSet, error)
	Update(ctx context.Context, rules *models.RuleSet) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PortfolioRepository reads portfolio holdings owned by the portfolio service
type PortfolioRepository interface {
	GetHoldings(ctx context.Context, portfolioID int64) ([]models.Holding, error)
}

// SnapshotRepository defines the interface for result summary data access
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.PortfolioSnapshot) (int64, error)
	Delete(ctx context.Context, id int64) error
	GetLatestByBacktest(ctx context.Context, backtestID int64) (*models.PortfolioSnapshot, error)
	AttachReport(ctx context.Context, id int64, content string, createdAt time.Time) error
}

// HoldingSnapshotRepository defines the interface for per-day holding rows
type HoldingSnapshotRepository interface {
	InsertBatch(ctx context.Context, holdings []models.HoldingSnapshot, batchSize int) error
	ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.HoldingSnapshot, error)
}

// ExecutionLogRepository defines the interface for trade log rows
type ExecutionLogRepository interface {
	InsertBatch(ctx context.Context, logs []models.ExecutionLog, batchSize int) error
	ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.ExecutionLog, error)
}
