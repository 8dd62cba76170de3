package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActionType(t *testing.T) {
	tests := []struct {
		in      string
		want    ActionType
		wantErr bool
	}{
		{"buy", ActionBuy, false},
		{"SELL", ActionSell, false},
		{"Stop_Loss", ActionStopLoss, false},
		{"take_profit", ActionTakeProfit, false},
		{"rebalance", ActionRebalance, false},
		{"LIQUIDATION", ActionLiquidation, false},
		{"hold", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActionType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownActionType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRuleCategory(t *testing.T) {
	c, err := ParseRuleCategory("mdd")
	require.NoError(t, err)
	assert.Equal(t, CategoryMDD, c)
	assert.True(t, c.IsRatio)

	_, err = ParseRuleCategory("RSI")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestEngineTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"local date time", `"2024-03-01T09:30:00"`, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"fractional seconds", `"2024-03-01T09:30:00.5"`, time.Date(2024, 3, 1, 9, 30, 0, 500000000, time.UTC)},
		{"rfc3339", `"2024-03-01T09:30:00Z"`, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
		{"plain date", `"2024-03-01"`, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var et EngineTime
			require.NoError(t, json.Unmarshal([]byte(tt.in), &et))
			assert.True(t, tt.want.Equal(et.Time), "got %s", et.Time)
		})
	}

	var et EngineTime
	require.NoError(t, json.Unmarshal([]byte(`null`), &et))
	assert.True(t, et.IsZero())
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &et))
}

func TestExecutionSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"1.666s", ptr(1.666)},
		{"12", ptr(12)},
		{"", nil},
		{"   ", nil},
		{"abc", nil},
		{"1.2.3s", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := &PortfolioSnapshotPayload{ExecutionTime: tt.in}
			got := p.ExecutionSeconds()
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestCallbackPayload_Decode(t *testing.T) {
	body := `{
		"job_id": "job-1",
		"success": true,
		"backtest_id": 42,
		"result_status": "liquidated",
		"portfolio_snapshot": {"base_value": 1000, "current_value": 1100, "start_at": "2024-01-02T00:00:00", "execution_time": "2.5s"},
		"metrics": {"total_return": 0.1, "sharpe_ratio": 1.2, "var_95": 0.03},
		"result_summary": [{"date": "2024-01-02T00:00:00", "stocks": [{"stock_code": "005930", "close_price": 70000, "quantity": 3}]}],
		"execution_logs": [{"date": "2024-01-02T00:00:00", "action": "BUY", "value": 1.0}]
	}`

	var p CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	require.NotNil(t, p.BacktestID)
	assert.Equal(t, int64(42), *p.BacktestID)
	assert.True(t, p.Succeeded())
	assert.Equal(t, ResultLiquidated, p.NormalizedResultStatus())
	assert.InDelta(t, 0.03, p.Metrics.VaR95, 1e-9)
	require.Len(t, p.ResultSummary, 1)
	assert.Equal(t, 3, p.ResultSummary[0].Stocks[0].Quantity)
	assert.InDelta(t, 2.5, *p.PortfolioSnapshot.ExecutionSeconds(), 1e-9)
}

func TestCallbackPayload_Succeeded(t *testing.T) {
	yes, no := true, false
	assert.False(t, (&CallbackPayload{}).Succeeded())
	assert.False(t, (&CallbackPayload{Success: &no}).Succeeded())
	assert.False(t, (&CallbackPayload{Success: &yes, Error: &EngineErrorPayload{Message: "x"}}).Succeeded())
	assert.True(t, (&CallbackPayload{Success: &yes}).Succeeded())
}

func TestParseResultStatus(t *testing.T) {
	assert.Equal(t, ResultLiquidated, ParseResultStatus("LIQUIDATED"))
	assert.Equal(t, ResultCompleted, ParseResultStatus(""))
	assert.Equal(t, ResultCompleted, ParseResultStatus("weird"))
}

func TestDecodeMetrics(t *testing.T) {
	s := &PortfolioSnapshot{}
	blob, err := s.DecodeMetrics()
	require.NoError(t, err)
	assert.Nil(t, blob)

	s.Metrics = json.RawMessage(`{"totalReturn":0.12,"benchmark":{"alpha":0.02}}`)
	blob, err = s.DecodeMetrics()
	require.NoError(t, err)
	assert.InDelta(t, 0.12, blob.TotalReturn, 1e-9)
	require.NotNil(t, blob.Benchmark)
	assert.InDelta(t, 0.02, *blob.Benchmark.Alpha, 1e-9)
}

func ptr(v float64) *float64 { return &v }
