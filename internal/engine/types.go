// Package engine submits backtest jobs to the remote compute engine.
package engine

// StartRequest is the body of POST /backtest/start
type StartRequest struct {
	BacktestID         int64          `json:"backtest_id"`
	Start              string         `json:"start"`
	End                string         `json:"end"`
	Holdings           []HoldingInput `json:"holdings"`
	RebalanceFrequency string         `json:"rebalance_frequency"`
	CallbackURL        string         `json:"callback_url"`
	Rules              *RulesRequest  `json:"rules,omitempty"`
	BenchmarkCode      string         `json:"benchmark_code,omitempty"`
}

// HoldingInput is one portfolio position
type HoldingInput struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// RulesRequest carries normalized thresholds grouped by rule type
type RulesRequest struct {
	StopLoss   []RuleValue `json:"stopLoss,omitempty"`
	TakeProfit []RuleValue `json:"takeProfit,omitempty"`
}

// RuleValue is a single rule with its canonical numeric threshold
type RuleValue struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

// StartResponse is the engine's acknowledgement
type StartResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

const rebalanceDaily = "daily"
