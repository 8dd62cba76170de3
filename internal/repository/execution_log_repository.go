package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const insertExecutionLogSQL = `
	INSERT INTO execution_logs
		(portfolio_snapshot_id, backtest_id, log_date, action_type, category, trigger_value,
		 threshold_value, reason, portfolio_value, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// PostgresExecutionLogRepository implements ExecutionLogRepository for PostgreSQL
type PostgresExecutionLogRepository struct {
	db *database.DB
}

// NewPostgresExecutionLogRepository creates a new execution log repository
func NewPostgresExecutionLogRepository(db *database.DB) ExecutionLogRepository {
	return &PostgresExecutionLogRepository{db: db}
}

// InsertBatch appends log rows in chunks of batchSize
func (r *PostgresExecutionLogRepository) InsertBatch(ctx context.Context, logs []models.ExecutionLog, batchSize int) error {
	if len(logs) == 0 {
		return nil
	}

	rows := make([][]any, len(logs))
	for i, l := range logs {
		rows[i] = []any{
			l.PortfolioSnapshotID, l.BacktestID, l.LogDate, l.ActionType, l.Category, l.TriggerValue,
			l.ThresholdValue, l.Reason, l.PortfolioValue, l.CreatedAt,
		}
	}

	if err := sendChunked(ctx, r.db.Querier(ctx), insertExecutionLogSQL, rows, batchSize); err != nil {
		return fmt.Errorf("failed to batch insert execution logs: %w", err)
	}
	return nil
}

// ListBySnapshot returns log rows in chronological order
func (r *PostgresExecutionLogRepository) ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.ExecutionLog, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT id, portfolio_snapshot_id, backtest_id, log_date, action_type, category, trigger_value,
		       threshold_value, reason, portfolio_value, created_at
		FROM execution_logs
		WHERE portfolio_snapshot_id = $1
		ORDER BY log_date ASC, id ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer rows.Close()

	var logs []models.ExecutionLog
	for rows.Next() {
		var l models.ExecutionLog
		err := rows.Scan(&l.ID, &l.PortfolioSnapshotID, &l.BacktestID, &l.LogDate, &l.ActionType, &l.Category,
			&l.TriggerValue, &l.ThresholdValue, &l.Reason, &l.PortfolioValue, &l.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
