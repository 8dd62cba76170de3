package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const backtestColumns = `id, portfolio_id, title, description, start_at, end_at, rule_id, benchmark_code,
	status, result_status, status_updated_at, created_at, updated_at, deleted_at`

// PostgresBacktestRepository implements BacktestRepository for PostgreSQL
type PostgresBacktestRepository struct {
	db *database.DB
}

// NewPostgresBacktestRepository creates a new backtest repository
func NewPostgresBacktestRepository(db *database.DB) BacktestRepository {
	return &PostgresBacktestRepository{db: db}
}

// Create inserts a backtest and assigns its id
func (r *PostgresBacktestRepository) Create(ctx context.Context, b *models.Backtest) error {
	query := `
		INSERT INTO backtests (portfolio_id, title, description, start_at, end_at, rule_id, benchmark_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status_updated_at, created_at, updated_at
	`

	if b.Status == "" {
		b.Status = models.StatusCreated
	}

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		b.PortfolioID, b.Title, b.Description, b.StartAt, b.EndAt, b.RuleID, b.BenchmarkCode, b.Status,
	).Scan(&b.ID, &b.StatusUpdatedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create backtest: %w", err)
	}
	return nil
}

// GetByID retrieves a live backtest by id
func (r *PostgresBacktestRepository) GetByID(ctx context.Context, id int64) (*models.Backtest, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests WHERE id = $1 AND deleted_at IS NULL`

	b, err := scanBacktest(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(errScanBacktest, err)
	}
	return b, nil
}

// ListByPortfolio returns live backtests of a portfolio, newest first
func (r *PostgresBacktestRepository) ListByPortfolio(ctx context.Context, portfolioID int64) ([]*models.Backtest, error) {
	query := `SELECT ` + backtestColumns + ` FROM backtests
		WHERE portfolio_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests by portfolio: %w", err)
	}
	defer rows.Close()

	var backtests []*models.Backtest
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanBacktest, err)
		}
		backtests = append(backtests, b)
	}
	return backtests, rows.Err()
}

// Update overwrites the user-editable settings of a backtest
func (r *PostgresBacktestRepository) Update(ctx context.Context, b *models.Backtest) error {
	query := `
		UPDATE backtests
		SET title = $2, description = $3, start_at = $4, end_at = $5, rule_id = $6, benchmark_code = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query,
		b.ID, b.Title, b.Description, b.StartAt, b.EndAt, b.RuleID, b.BenchmarkCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update backtest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SoftDelete marks a backtest deleted; the row is kept
func (r *PostgresBacktestRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE backtests SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStatus overwrites the lifecycle status
func (r *PostgresBacktestRepository) UpdateStatus(ctx context.Context, id int64, status models.BacktestStatus) error {
	tag, err := r.db.Direct().Exec(ctx, `
		UPDATE backtests SET status = $2, status_updated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update backtest status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkRunning flips a backtest to RUNNING unless it already is
func (r *PostgresBacktestRepository) MarkRunning(ctx context.Context, id int64) error {
	q := r.db.Direct()
	tag, err := q.Exec(ctx, `
		UPDATE backtests SET status = $2, result_status = NULL, status_updated_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status <> $2`, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark backtest running: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM backtests WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check backtest existence: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}
	return models.ErrStatusConflict
}

// UpdateResultStatus records the engine's result classification
func (r *PostgresBacktestRepository) UpdateResultStatus(ctx context.Context, id int64, status models.ResultStatus) error {
	tag, err := r.db.Direct().Exec(ctx, `
		UPDATE backtests SET result_status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update backtest result status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetStatus returns the lifecycle status of a live backtest
func (r *PostgresBacktestRepository) GetStatus(ctx context.Context, id int64) (models.BacktestStatus, error) {
	var status models.BacktestStatus
	err := r.db.Direct().QueryRow(ctx,
		`SELECT status FROM backtests WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&status)
	if isNoRows(err) {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get backtest status: %w", err)
	}
	return status, nil
}

// StatusesByPortfolio maps backtest id to status for a portfolio
func (r *PostgresBacktestRepository) StatusesByPortfolio(ctx context.Context, portfolioID int64) (map[int64]models.BacktestStatus, error) {
	rows, err := r.db.Direct().Query(ctx,
		`SELECT id, status FROM backtests WHERE portfolio_id = $1 AND deleted_at IS NULL`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[int64]models.BacktestStatus)
	for rows.Next() {
		var (
			id     int64
			status models.BacktestStatus
		)
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan backtest status: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

// ListRunningSince returns ids of backtests RUNNING since before cutoff
func (r *PostgresBacktestRepository) ListRunningSince(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.Direct().Query(ctx, `
		SELECT id FROM backtests
		WHERE status = $1 AND status_updated_at < $2 AND deleted_at IS NULL
		ORDER BY status_updated_at ASC`, models.StatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck backtests: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to collect stuck backtests: %w", err)
	}
	return ids, nil
}

func scanBacktest(row pgx.Row) (*models.Backtest, error) {
	b := &models.Backtest{}
	err := row.Scan(
		&b.ID, &b.PortfolioID, &b.Title, &b.Description, &b.StartAt, &b.EndAt, &b.RuleID, &b.BenchmarkCode,
		&b.Status, &b.ResultStatus, &b.StatusUpdatedAt, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}
