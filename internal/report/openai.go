package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/config"
)

const systemPrompt = "You are an investment analyst. Write clear, factual backtest reports in Markdown."

// ErrEmptyCompletion is returned when the model answers without content
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAIRenderer renders reports with an OpenAI-compatible chat completion API
type OpenAIRenderer struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
	template    string
	focus       string
}

// NewOpenAIRenderer creates a renderer from the report config section
func NewOpenAIRenderer(cfg config.ReportConfig, log *logrus.Logger) *OpenAIRenderer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout()))
	}

	return &OpenAIRenderer{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   int64(cfg.MaxTokens),
		template:    LoadTemplate(cfg.TemplateFile, log),
		focus:       cfg.AnalysisFocus,
	}
}

// Name implements Renderer
func (r *OpenAIRenderer) Name() string { return "openai" }

// Render implements Renderer
func (r *OpenAIRenderer) Render(ctx context.Context, document string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(r.template, document, r.focus)),
		},
		Temperature: openai.Float(r.temperature),
	}
	if r.maxTokens > 0 {
		params.MaxTokens = openai.Int(r.maxTokens)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
