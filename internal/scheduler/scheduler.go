// Package scheduler runs periodic maintenance jobs such as the stuck-backtest sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const minInterval = 5 * time.Second

// StuckSweeper fails backtests that stayed RUNNING for longer than olderThan
type StuckSweeper interface {
	FailStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler manages scheduled maintenance jobs
type Scheduler struct {
	cron            *cron.Cron
	log             *logrus.Entry
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
}

// NewScheduler creates a scheduler running jobs in UTC
func NewScheduler(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		log:             log.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
	}
}

// ScheduleWatchdog sweeps stuck backtests every interval
func (s *Scheduler) ScheduleWatchdog(sweeper StuckSweeper, interval, runningTimeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if runningTimeout <= 0 {
		return fmt.Errorf("watchdog running timeout must be positive")
	}
	if interval < minInterval {
		interval = minInterval
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.watchdogJob(sweeper, interval, runningTimeout))
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.log.WithFields(logrus.Fields{
		"interval":        interval.String(),
		"running_timeout": runningTimeout.String(),
	}).Info("Scheduled stuck backtest watchdog")
	return nil
}

func (s *Scheduler) watchdogJob(sweeper StuckSweeper, interval, runningTimeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		failed, err := sweeper.FailStuck(ctx, runningTimeout)
		if err != nil {
			s.log.WithError(err).Error("Watchdog sweep failed")
			return
		}
		if failed > 0 {
			s.log.WithField("failed", failed).Warn("Watchdog failed stuck backtests")
		}
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.log.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop waits for running jobs up to the graceful timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}
	s.isRunning = false

	select {
	case <-s.cron.Stop().Done():
		s.log.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler jobs still running after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	var next time.Time
	for _, id := range s.jobIDs {
		entry := s.cron.Entry(id)
		if entry.Valid() && (next.IsZero() || entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}
