// Package logger provides report-generation logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// ReportLogger provides dedicated logging for AI report generation.
type ReportLogger struct {
	*logrus.Entry
}

// NewReportLogger creates a new report logger.
func NewReportLogger(baseLogger *logrus.Logger) *ReportLogger {
	return &ReportLogger{
		Entry: baseLogger.WithField("component", "report"),
	}
}

// LogRender logs a completed render.
func (rl *ReportLogger) LogRender(backtestID int64, renderer string, documentChars, reportChars int, latencyMs float64) {
	rl.WithFields(logrus.Fields{
		"backtest_id":    backtestID,
		"renderer":       renderer,
		"document_chars": documentChars,
		"report_chars":   reportChars,
		"latency_ms":     latencyMs,
	}).Info("Backtest report generated")
}

// LogRenderError logs a failed render.
func (rl *ReportLogger) LogRenderError(backtestID int64, renderer string, err error) {
	rl.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"renderer":    renderer,
	}).WithError(err).Error("Backtest report generation failed")
}
