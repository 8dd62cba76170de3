package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/backtest-orchestrator/internal/config"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestBuildPrompt(t *testing.T) {
	tmpl := "focus={{analysisFocus}}|{{analysisFocusSection}}|data={{backtestData}}"

	tests := []struct {
		name  string
		focus string
		want  string
	}{
		{"without focus", "", "focus=||data=DOC"},
		{"with focus", "risk", "focus=risk|\nFocus the analysis on: risk|data=DOC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPrompt(tmpl, "DOC", tt.focus))
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	log := quietLogger()

	assert.Equal(t, DefaultTemplate, LoadTemplate("", log))
	assert.Equal(t, DefaultTemplate, LoadTemplate(filepath.Join(t.TempDir(), "missing.txt"), log))

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("custom {{backtestData}}"), 0o600))
	assert.Equal(t, "custom {{backtestData}}", LoadTemplate(path, log))
}

func TestStaticRenderer(t *testing.T) {
	out, err := StaticRenderer{}.Render(context.Background(), "document")
	require.NoError(t, err)
	assert.Equal(t, "document", out)
	assert.Equal(t, "static", StaticRenderer{}.Name())
}

func completionServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestOpenAIRenderer_Render(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "## Report", &body)
	defer srv.Close()

	r := NewOpenAIRenderer(config.ReportConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1/",
		Model:       "gpt-4o",
		Temperature: 0.3,
		MaxTokens:   2500,
	}, quietLogger())

	out, err := r.Render(context.Background(), "Backtest: Momentum")
	require.NoError(t, err)
	assert.Equal(t, "## Report", out)
	assert.Equal(t, "openai", r.Name())

	assert.Equal(t, "gpt-4o", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 1e-9)
	assert.InDelta(t, 2500, body["max_tokens"], 1e-9)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Contains(t, user["content"], "Backtest: Momentum")
}

func TestOpenAIRenderer_EmptyCompletion(t *testing.T) {
	srv := completionServer(t, "  ", nil)
	defer srv.Close()

	r := NewOpenAIRenderer(config.ReportConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1/", Model: "gpt-4o"}, quietLogger())

	_, err := r.Render(context.Background(), "doc")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
