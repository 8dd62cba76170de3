// Package events routes backtest completion signals to their handlers on the worker pool.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// Kind distinguishes success and failure signals
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// Signal announces that a backtest run finished, successfully or not
type Signal struct {
	ID         uuid.UUID
	Kind       Kind
	BacktestID int64
	Payload    *models.CallbackPayload
	Message    string
	CreatedAt  time.Time
}

// NewSuccess builds a success signal carrying the engine result
func NewSuccess(backtestID int64, payload *models.CallbackPayload) Signal {
	return Signal{
		ID:         uuid.New(),
		Kind:       KindSuccess,
		BacktestID: backtestID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewFailure builds a failure signal with a human-readable reason
func NewFailure(backtestID int64, message string) Signal {
	return Signal{
		ID:         uuid.New(),
		Kind:       KindFailure,
		BacktestID: backtestID,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
}
