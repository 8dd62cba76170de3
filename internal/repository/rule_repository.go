package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourusername/backtest-orchestrator/internal/database"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// PostgresRuleRepository implements RuleRepository with JSONB rule lists
type PostgresRuleRepository struct {
	db *database.DB
}

// NewPostgresRuleRepository creates a new rule repository
func NewPostgresRuleRepository(db *database.DB) RuleRepository {
	return &PostgresRuleRepository{db: db}
}

// Create inserts a rule set, generating its id when unset
func (r *PostgresRuleRepository) Create(ctx context.Context, rules *models.RuleSet) error {
	if rules.ID == uuid.Nil {
		rules.ID = uuid.New()
	}

	stopLoss, takeProfit, err := encodeRuleItems(rules)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO backtest_rules (id, backtest_id, memo, stop_loss, take_profit)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = r.db.Querier(ctx).QueryRow(ctx, query,
		rules.ID, rules.BacktestID, rules.Memo, stopLoss, takeProfit,
	).Scan(&rules.CreatedAt, &rules.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create backtest rules: %w", err)
	}
	return nil
}

// GetByID retrieves a rule set
func (r *PostgresRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RuleSet, error) {
	query := `
		SELECT id, backtest_id, memo, stop_loss, take_profit, created_at, updated_at
		FROM backtest_rules WHERE id = $1
	`

	var (
		rules                models.RuleSet
		stopLoss, takeProfit []byte
	)
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&rules.ID, &rules.BacktestID, &rules.Memo, &stopLoss, &takeProfit, &rules.CreatedAt, &rules.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backtest rules: %w", err)
	}

	if err := decodeRuleItems(stopLoss, &rules.StopLoss); err != nil {
		return nil, err
	}
	if err := decodeRuleItems(takeProfit, &rules.TakeProfit); err != nil {
		return nil, err
	}
	return &rules, nil
}

// Update replaces the rule lists and memo
func (r *PostgresRuleRepository) Update(ctx context.Context, rules *models.RuleSet) error {
	stopLoss, takeProfit, err := encodeRuleItems(rules)
	if err != nil {
		return err
	}

	tag, err := r.db.Querier(ctx).Exec(ctx, `
		UPDATE backtest_rules SET memo = $2, stop_loss = $3, take_profit = $4, updated_at = NOW()
		WHERE id = $1`, rules.ID, rules.Memo, stopLoss, takeProfit)
	if err != nil {
		return fmt.Errorf("failed to update backtest rules: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a rule set
func (r *PostgresRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM backtest_rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete backtest rules: %w", err)
	}
	return nil
}

func encodeRuleItems(rules *models.RuleSet) ([]byte, []byte, error) {
	stopLoss, err := json.Marshal(nonNilItems(rules.StopLoss))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode stop loss rules: %w", err)
	}
	takeProfit, err := json.Marshal(nonNilItems(rules.TakeProfit))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode take profit rules: %w", err)
	}
	return stopLoss, takeProfit, nil
}

func decodeRuleItems(raw []byte, dst *[]models.RuleItem) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode rule items: %w", err)
	}
	return nil
}

func nonNilItems(items []models.RuleItem) []models.RuleItem {
	if items == nil {
		return []models.RuleItem{}
	}
	return items
}
