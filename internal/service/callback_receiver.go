package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/backtest-orchestrator/internal/apperrors"
	"github.com/yourusername/backtest-orchestrator/internal/events"
	"github.com/yourusername/backtest-orchestrator/internal/metrics"
	"github.com/yourusername/backtest-orchestrator/internal/models"
)

const defaultFailureMessage = "Backtest failed"

// CallbackReceiver turns engine callbacks into completion signals
type CallbackReceiver struct {
	publisher events.Publisher
	log       *logrus.Entry
}

// NewCallbackReceiver creates a callback receiver publishing to publisher
func NewCallbackReceiver(publisher events.Publisher, log *logrus.Logger) *CallbackReceiver {
	return &CallbackReceiver{
		publisher: publisher,
		log:       log.WithField("component", "callback_receiver"),
	}
}

// OnCallback validates the payload and publishes a success or failure signal.
// A signal the pool cannot take is logged and still acknowledged.
func (r *CallbackReceiver) OnCallback(_ context.Context, payload *models.CallbackPayload) (uuid.UUID, error) {
	if payload == nil || payload.BacktestID == nil {
		return uuid.Nil, apperrors.Validation("backtest_id", "callback is missing backtest_id")
	}
	id := *payload.BacktestID

	var sig events.Signal
	if payload.Succeeded() {
		sig = events.NewSuccess(id, payload)
	} else {
		msg := payload.ErrorMessage()
		if msg == "" {
			msg = defaultFailureMessage
		}
		sig = events.NewFailure(id, msg)
	}

	entry := r.log.WithFields(logrus.Fields{
		"backtest_id": id,
		"job_id":      payload.JobID,
		"signal_id":   sig.ID.String(),
		"signal_kind": sig.Kind,
	})

	if err := r.publisher.Publish(sig); err != nil {
		metrics.RecordSignal(string(sig.Kind), "rejected")
		entry.WithError(err).Error("Completion signal could not be queued; the watchdog will fail the backtest")
		return sig.ID, nil
	}

	metrics.RecordSignal(string(sig.Kind), "published")
	entry.Info("Engine callback accepted")
	return sig.ID, nil
}
