// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogStatusTransition logs a backtest status change.
func (al *AuditLogger) LogStatusTransition(backtestID int64, field, oldValue, newValue string) {
	al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"field":       field,
		"old_value":   oldValue,
		"new_value":   newValue,
		"timestamp":   time.Now().UTC().Unix(),
	}).Info("Backtest status changed")
}

// LogSignal logs a completion signal entering the dispatcher.
func (al *AuditLogger) LogSignal(signalID string, kind string, backtestID int64, message string) {
	al.WithFields(logrus.Fields{
		"signal_id":   signalID,
		"signal_kind": kind,
		"backtest_id": backtestID,
		"message":     message,
	}).Info("Completion signal recorded")
}

// LogCompensation logs the removal of a partially persisted result.
func (al *AuditLogger) LogCompensation(backtestID, snapshotID int64, cause error, compensationErr error) {
	entry := al.WithFields(logrus.Fields{
		"backtest_id": backtestID,
		"snapshot_id": snapshotID,
		"cause":       errString(cause),
	})
	if compensationErr != nil {
		entry.WithError(compensationErr).Error("Compensating delete failed, orphaned result summary remains")
		return
	}
	entry.Warn("Result summary removed after detail persistence failure")
}

// LogWatchdogSweep logs a stuck-job sweep.
func (al *AuditLogger) LogWatchdogSweep(cutoff time.Time, failed int) {
	entry := al.WithFields(logrus.Fields{
		"cutoff":      cutoff.UTC().Format(time.RFC3339),
		"jobs_failed": failed,
	})
	if failed > 0 {
		entry.Warn("Stuck backtests marked as failed")
		return
	}
	entry.Debug("Watchdog sweep found no stuck backtests")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
