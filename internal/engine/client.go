package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/config"
	"github.com/yourusername/backtest-orchestrator/internal/events"
	"github.com/yourusername/backtest-orchestrator/internal/logger"
	"github.com/yourusername/backtest-orchestrator/internal/models"
	"github.com/yourusername/backtest-orchestrator/internal/repository"
	"github.com/yourusername/backtest-orchestrator/internal/rules"
)

const (
	startPath  = "/backtest/start"
	healthPath = "/health"

	// maxErrorBody caps how much of a failed response is quoted in errors
	maxErrorBody = 512
)

// Dependencies are the collaborators a Client reads from and reports to
type Dependencies struct {
	Backtests  repository.BacktestRepository
	Rules      repository.RuleRepository
	Portfolios repository.PortfolioRepository
	Publisher  events.Publisher
}

// Client builds start requests and submits them to the engine
type Client struct {
	http        *HTTPClient
	baseURL     string
	apiKey      string
	callbackURL string

	backtests  repository.BacktestRepository
	rules      repository.RuleRepository
	portfolios repository.PortfolioRepository
	publisher  events.Publisher
	normalizer *rules.Normalizer
	log        *logger.EngineLogger
}

// NewClient creates an engine client from configuration
func NewClient(cfg *config.Config, deps Dependencies, log *logrus.Logger) *Client {
	return NewClientWithTransport(cfg, NewHTTPClient(HTTPClientConfigFrom(cfg.Engine), log), deps, log)
}

// NewClientWithTransport creates an engine client using an existing transport
func NewClientWithTransport(cfg *config.Config, transport *HTTPClient, deps Dependencies, log *logrus.Logger) *Client {
	return &Client{
		http:        transport,
		baseURL:     strings.TrimRight(cfg.Engine.BaseURL, "/"),
		apiKey:      cfg.Engine.APIKey,
		callbackURL: cfg.CallbackURL(),
		backtests:   deps.Backtests,
		rules:       deps.Rules,
		portfolios:  deps.Portfolios,
		publisher:   deps.Publisher,
		normalizer:  rules.NewNormalizer(log),
		log:         logger.NewEngineLogger(log),
	}
}

// Submit sends the backtest to the engine. It runs on a pool worker and never
// returns an error: every failure becomes a failure signal for the backtest.
func (c *Client) Submit(ctx context.Context, backtestID int64) {
	start := time.Now()

	resp, err := c.submit(ctx, backtestID)
	if err != nil {
		c.log.LogSubmissionFailure(backtestID, err)
		sig := events.NewFailure(backtestID, fmt.Sprintf("engine submission failed: %v", err))
		if perr := c.publisher.Publish(sig); perr != nil {
			c.log.WithField("backtest_id", backtestID).WithError(perr).Error("Failed to publish failure signal")
		}
		return
	}

	c.log.LogAccepted(backtestID, resp.JobID, resp.Status, resp.Message, float64(time.Since(start).Milliseconds()))
}

func (c *Client) submit(ctx context.Context, backtestID int64) (*StartResponse, error) {
	backtest, err := c.backtests.GetByID(ctx, backtestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperrors.NotFound("backtest", backtestID)
		}
		return nil, err
	}

	req, err := c.BuildRequest(ctx, backtest)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+startPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build start request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	var sl, tp int
	if req.Rules != nil {
		sl, tp = len(req.Rules.StopLoss), len(req.Rules.TakeProfit)
	}
	c.log.LogSubmission(backtestID, requestID, len(req.Holdings), sl, tp)

	resp, err := c.http.DoOnce(ctx, "start", httpReq)
	if err != nil {
		return nil, apperrors.EngineCommunication("engine.start", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apperrors.EngineCommunication("engine.start",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var out StartResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.EngineCommunication("engine.start", fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}

// BuildRequest assembles the start request for backtest
func (c *Client) BuildRequest(ctx context.Context, backtest *models.Backtest) (*StartRequest, error) {
	holdings, err := c.portfolios.GetHoldings(ctx, backtest.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	inputs := make([]HoldingInput, 0, len(holdings))
	for _, h := range holdings {
		inputs = append(inputs, HoldingInput{Code: h.StockCode, Quantity: h.Quantity})
	}

	ruleReq, err := c.buildRules(ctx, backtest)
	if err != nil {
		return nil, err
	}

	return &StartRequest{
		BacktestID:         backtest.ID,
		Start:              backtest.StartAt.UTC().Format(time.RFC3339),
		End:                backtest.EndAt.UTC().Format(time.RFC3339),
		Holdings:           inputs,
		RebalanceFrequency: rebalanceDaily,
		CallbackURL:        c.callbackURL,
		Rules:              ruleReq,
		BenchmarkCode:      backtest.Benchmark(),
	}, nil
}

func (c *Client) buildRules(ctx context.Context, backtest *models.Backtest) (*RulesRequest, error) {
	if backtest.RuleID == nil {
		return nil, nil
	}

	set, err := c.rules.GetByID(ctx, *backtest.RuleID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.log.WithFields(logrus.Fields{
				"backtest_id": backtest.ID,
				"rule_id":     backtest.RuleID.String(),
			}).Warn("Rule set not found, submitting without rules")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	stopLoss, err := c.ruleValues(set.StopLoss)
	if err != nil {
		return nil, err
	}
	takeProfit, err := c.ruleValues(set.TakeProfit)
	if err != nil {
		return nil, err
	}
	if len(stopLoss) == 0 && len(takeProfit) == 0 {
		return nil, nil
	}
	return &RulesRequest{StopLoss: stopLoss, TakeProfit: takeProfit}, nil
}

func (c *Client) ruleValues(items []models.RuleItem) ([]RuleValue, error) {
	out := make([]RuleValue, 0, len(items))
	for _, item := range items {
		normalized, err := c.normalizer.Normalize(item.Category, item.Threshold)
		if err != nil {
			return nil, err
		}
		value, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse normalized threshold %q: %w", normalized, err)
		}
		out = append(out, RuleValue{Category: item.Category, Value: value})
	}
	return out, nil
}

// HealthCheck probes the engine's health endpoint
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.http.Get(ctx, "health", c.baseURL+healthPath)
	if err != nil {
		return apperrors.EngineCommunication("engine.health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return apperrors.EngineCommunication("engine.health", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// Close releases idle transport connections
func (c *Client) Close() error {
	return c.http.Close()
}
