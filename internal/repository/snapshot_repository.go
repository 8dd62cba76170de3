package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// PostgresSnapshotRepository implements SnapshotRepository for PostgreSQL
type PostgresSnapshotRepository struct {
	db *database.DB
}

// NewPostgresSnapshotRepository creates a new snapshot repository
func NewPostgresSnapshotRepository(db *database.DB) SnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// Create inserts a result summary and returns its id
func (r *PostgresSnapshotRepository) Create(ctx context.Context, s *models.PortfolioSnapshot) (int64, error) {
	query := `
		INSERT INTO portfolio_snapshots
			(backtest_id, base_value, current_value, metrics, start_at, end_at, execution_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	var metrics []byte
	if len(s.Metrics) > 0 {
		metrics = s.Metrics
	}

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		s.BacktestID, s.BaseValue, s.CurrentValue, metrics, s.StartAt, s.EndAt, s.ExecutionTime, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to create portfolio snapshot: %w", err)
	}
	return s.ID, nil
}

// Delete removes a result summary; detail rows cascade
func (r *PostgresSnapshotRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM portfolio_snapshots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete portfolio snapshot: %w", err)
	}
	return nil
}

// GetLatestByBacktest returns the most recent result summary of a backtest
func (r *PostgresSnapshotRepository) GetLatestByBacktest(ctx context.Context, backtestID int64) (*models.PortfolioSnapshot, error) {
	query := `
		SELECT id, backtest_id, base_value, current_value, metrics, start_at, end_at, execution_time,
		       report_content, report_created_at, created_at
		FROM portfolio_snapshots
		WHERE backtest_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var (
		s       models.PortfolioSnapshot
		metrics []byte
	)
	err := r.db.Querier(ctx).QueryRow(ctx, query, backtestID).Scan(
		&s.ID, &s.BacktestID, &s.BaseValue, &s.CurrentValue, &metrics, &s.StartAt, &s.EndAt, &s.ExecutionTime,
		&s.ReportContent, &s.ReportCreatedAt, &s.CreatedAt,
	)
	if isNoRows(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(errScanSnapshot, err)
	}
	s.Metrics = metrics
	return &s, nil
}

// AttachReport stores generated report text on a result summary
func (r *PostgresSnapshotRepository) AttachReport(ctx context.Context, id int64, content string, createdAt time.Time) error {
	tag, err := r.db.Querier(ctx).Exec(ctx, `
		UPDATE portfolio_snapshots SET report_content = $2, report_created_at = $3
		WHERE id = $1`, id, content, createdAt)
	if err != nil {
		return fmt.Errorf("failed to attach report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
