package models

import (
	"fmt"
	"strings"
	"time"
)

// ActionType is the kind of trade or rule trigger the engine logged
type ActionType string

const (
	ActionBuy         ActionType = "BUY"
	ActionSell        ActionType = "SELL"
	ActionStopLoss    ActionType = "STOP_LOSS"
	ActionTakeProfit  ActionType = "TAKE_PROFIT"
	ActionRebalance   ActionType = "REBALANCE"
	ActionLiquidation ActionType = "LIQUIDATION"
)

// ParseActionType maps an engine action string case-insensitively
func ParseActionType(action string) (ActionType, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	case "stop_loss":
		return ActionStopLoss, nil
	case "take_profit":
		return ActionTakeProfit, nil
	case "rebalance":
		return ActionRebalance, nil
	case "liquidation":
		return ActionLiquidation, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownActionType, action)
	}
}

// ExecutionLog is one trade-log entry of a run
type ExecutionLog struct {
	ID                  int64      `db:"id" json:"id"`
	PortfolioSnapshotID int64      `db:"portfolio_snapshot_id" json:"portfolio_snapshot_id"`
	BacktestID          int64      `db:"backtest_id" json:"backtest_id"`
	LogDate             time.Time  `db:"log_date" json:"log_date"`
	ActionType          ActionType `db:"action_type" json:"action_type"`
	Category            string     `db:"category" json:"category,omitempty"`
	TriggerValue        float64    `db:"trigger_value" json:"trigger_value"`
	ThresholdValue      float64    `db:"threshold_value" json:"threshold_value"`
	Reason              string     `db:"reason" json:"reason,omitempty"`
	PortfolioValue      float64    `db:"portfolio_value" json:"portfolio_value"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
}
