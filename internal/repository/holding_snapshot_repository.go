package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const insertHoldingSnapshotSQL = `
	INSERT INTO holding_snapshots
		(portfolio_snapshot_id, stock_code, weight, price, quantity, value, recorded_at, contribution, daily_ratio)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// PostgresHoldingSnapshotRepository implements HoldingSnapshotRepository for PostgreSQL
type PostgresHoldingSnapshotRepository struct {
	db *database.DB
}

// NewPostgresHoldingSnapshotRepository creates a new holding snapshot repository
func NewPostgresHoldingSnapshotRepository(db *database.DB) HoldingSnapshotRepository {
	return &PostgresHoldingSnapshotRepository{db: db}
}

// InsertBatch appends holding rows in chunks of batchSize
func (r *PostgresHoldingSnapshotRepository) InsertBatch(ctx context.Context, holdings []models.HoldingSnapshot, batchSize int) error {
	if len(holdings) == 0 {
		return nil
	}

	rows := make([][]any, len(holdings))
	for i, h := range holdings {
		rows[i] = []any{
			h.PortfolioSnapshotID, h.StockCode, h.Weight, h.Price, h.Quantity,
			h.Value, h.RecordedAt, h.Contribution, h.DailyRatio,
		}
	}

	if err := sendChunked(ctx, r.db.Querier(ctx), insertHoldingSnapshotSQL, rows, batchSize); err != nil {
		return fmt.Errorf("failed to batch insert holding snapshots: %w", err)
	}
	return nil
}

// ListBySnapshot returns holding rows ordered by day then stock
func (r *PostgresHoldingSnapshotRepository) ListBySnapshot(ctx context.Context, snapshotID int64) ([]models.HoldingSnapshot, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT id, portfolio_snapshot_id, stock_code, weight, price, quantity, value, recorded_at, contribution, daily_ratio
		FROM holding_snapshots
		WHERE portfolio_snapshot_id = $1
		ORDER BY recorded_at ASC, stock_code ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holding snapshots: %w", err)
	}
	defer rows.Close()

	var holdings []models.HoldingSnapshot
	for rows.Next() {
		var h models.HoldingSnapshot
		err := rows.Scan(&h.ID, &h.PortfolioSnapshotID, &h.StockCode, &h.Weight, &h.Price, &h.Quantity,
			&h.Value, &h.RecordedAt, &h.Contribution, &h.DailyRatio)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding snapshot: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
