package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// PostgresPortfolioRepository reads the holdings table maintained by the portfolio service
type PostgresPortfolioRepository struct {
	db *database.DB
}

// NewPostgresPortfolioRepository creates a new portfolio repository
func NewPostgresPortfolioRepository(db *database.DB) PortfolioRepository {
	return &PostgresPortfolioRepository{db: db}
}

// GetHoldings returns the current positions of a portfolio
func (r *PostgresPortfolioRepository) GetHoldings(ctx context.Context, portfolioID int64) ([]models.Holding, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, `
		SELECT stock_code, quantity FROM portfolio_holdings
		WHERE portfolio_id = $1 ORDER BY stock_code`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.StockCode, &h.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}
