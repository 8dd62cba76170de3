// Package logger provides engine-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// EngineLogger provides dedicated logging for backtest engine traffic.
type EngineLogger struct {
	*logrus.Entry
}

// NewEngineLogger creates a new engine logger.
func NewEngineLogger(baseLogger *logrus.Logger) *EngineLogger {
	return &EngineLogger{
		Entry: baseLogger.WithField("component", "engine"),
	}
}

// LogSubmission logs an outbound start request.
func (el *EngineLogger) LogSubmission(backtestID int64, requestID string, holdings, stopLossRules, takeProfitRules int) {
	el.WithFields(logrus.Fields{
		"backtest_id":       backtestID,
		"request_id":        requestID,
		"holdings":          holdings,
		"stop_loss_rules":   stopLossRules,
		"take_profit_rules": takeProfitRules,
	}).Info("Submitting backtest to engine")
}

// LogAccepted logs the engine's acknowledgement.
func (el *EngineLogger) LogAccepted(backtestID int64, jobID, status, message string, latencyMs float64) {
	el.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"job_id":      jobID,
		"status":      status,
		"message":     message,
		"latency_ms":  latencyMs,
	}).Info("Engine accepted backtest")
}

// LogSubmissionFailure logs a submission that produced a failure signal.
func (el *EngineLogger) LogSubmissionFailure(backtestID int64, err error) {
	el.WithFields(logrus.Fields{
		"backtest_id": backtestID,
	}).WithError(err).Error("Engine submission failed")
}
