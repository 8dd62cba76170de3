package report

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	placeholderData         = "{{backtestData}}"
	placeholderFocus        = "{{analysisFocus}}"
	placeholderFocusSection = "{{analysisFocusSection}}"
)

// DefaultTemplate is used when no template file is configured or readable
const DefaultTemplate = `Write an analysis report for the backtest below.

Cover overall performance, risk, the comparison against the benchmark,
the shape of the equity curve, and what the execution log says about the
stop-loss and take-profit rules. Close with concrete suggestions.
{{analysisFocusSection}}

Backtest data:
{{backtestData}}
`

// LoadTemplate reads the prompt template at path, falling back to DefaultTemplate
func LoadTemplate(path string, log *logrus.Logger) string {
	if strings.TrimSpace(path) == "" {
		return DefaultTemplate
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithField("component", "report").WithField("path", path).WithError(err).
			Warn("Failed to read report template, using default")
		return DefaultTemplate
	}
	return string(data)
}

// BuildPrompt fills the template placeholders
func BuildPrompt(template, backtestData, focus string) string {
	section := ""
	if strings.TrimSpace(focus) != "" {
		section = "\nFocus the analysis on: " + focus
	}
	return strings.NewReplacer(
		placeholderData, backtestData,
		placeholderFocus, focus,
		placeholderFocusSection, section,
	).Replace(template)
}
