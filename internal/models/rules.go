package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RuleType groups rule categories into stop-loss and take-profit rules
type RuleType string

const (
	RuleTypeStopLoss   RuleType = "STOP_LOSS"
	RuleTypeTakeProfit RuleType = "TAKE_PROFIT"
)

// RuleCategory describes how a rule threshold is interpreted
type RuleCategory struct {
	Code          string
	Type          RuleType
	IsRatio       bool
	AllowNegative bool
	Description   string
}

var (
	CategoryBeta      = RuleCategory{Code: "BETA", Type: RuleTypeStopLoss, Description: "beta above threshold"}
	CategoryMDD       = RuleCategory{Code: "MDD", Type: RuleTypeStopLoss, IsRatio: true, Description: "max drawdown above threshold"}
	CategoryVaR       = RuleCategory{Code: "VAR", Type: RuleTypeStopLoss, IsRatio: true, Description: "value at risk above threshold"}
	CategoryLossLimit = RuleCategory{Code: "LOSS_LIMIT", Type: RuleTypeStopLoss, IsRatio: true, AllowNegative: true, Description: "loss limit line"}
	CategoryOneProfit = RuleCategory{Code: "ONEPROFIT", Type: RuleTypeTakeProfit, IsRatio: true, Description: "single stock target return"}
)

// RuleCategories lists every supported category
var RuleCategories = []RuleCategory{CategoryBeta, CategoryMDD, CategoryVaR, CategoryLossLimit, CategoryOneProfit}

// ParseRuleCategory looks up a category by code, ignoring case
func ParseRuleCategory(code string) (RuleCategory, error) {
	for _, c := range RuleCategories {
		if strings.EqualFold(c.Code, strings.TrimSpace(code)) {
			return c, nil
		}
	}
	return RuleCategory{}, fmt.Errorf("%w: %q", ErrUnknownCategory, code)
}

// RuleItem is one configured rule
type RuleItem struct {
	Category    string `json:"category" validate:"required"`
	Threshold   string `json:"threshold" validate:"required"`
	Description string `json:"description,omitempty"`
}

// RuleSet is the stop-loss / take-profit configuration of a backtest
type RuleSet struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	BacktestID int64      `db:"backtest_id" json:"backtest_id"`
	Memo       string     `db:"memo" json:"memo,omitempty"`
	StopLoss   []RuleItem `db:"stop_loss" json:"stop_loss"`
	TakeProfit []RuleItem `db:"take_profit" json:"take_profit"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// IsEmpty reports whether the set carries no rules and no memo
func (r *RuleSet) IsEmpty() bool {
	return r == nil || (len(r.StopLoss) == 0 && len(r.TakeProfit) == 0 && strings.TrimSpace(r.Memo) == "")
}
