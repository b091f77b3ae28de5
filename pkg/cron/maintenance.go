// Package cron runs background maintenance. None of these jobs sit on a
// request's pricing path.
package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"livementor_backend/pkg/logger"
)

type TrialReminder interface {
	SendTrialReminders(ctx context.Context, within time.Duration) (int, error)
}

type PendingSweeper interface {
	SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

type RateWarmer interface {
	RefreshRates(ctx context.Context) error
}

type Jobs struct {
	Trials  TrialReminder
	Pending PendingSweeper
	Rates   RateWarmer
	Log     *zap.Logger

	// PendingTTL is how long an unpaid checkout may stay pending.
	PendingTTL time.Duration
	// TrialWarning is how far ahead of a trial's end the reminder goes out.
	TrialWarning time.Duration
	// Timeout bounds a single job run.
	Timeout time.Duration
}

// Schedules, in robfig/cron five-field syntax.
const (
	TrialReminderSpec = "0 9 * * *"
	PendingSweepSpec  = "*/30 * * * *"
	RateWarmSpec      = "@every 1h"
)

// Start registers every configured job and starts the scheduler. Stop the
// returned cron on shutdown.
func Start(j Jobs) (*cron.Cron, error) {
	c := cron.New()
	if err := Register(c, j); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// Register adds the maintenance jobs to c without starting it.
func Register(c *cron.Cron, j Jobs) error {
	j = j.withDefaults()

	if j.Trials != nil {
		if _, err := c.AddFunc(TrialReminderSpec, j.remindTrials); err != nil {
			return err
		}
	}
	if j.Pending != nil {
		if _, err := c.AddFunc(PendingSweepSpec, j.sweepPending); err != nil {
			return err
		}
	}
	if j.Rates != nil {
		if _, err := c.AddFunc(RateWarmSpec, j.warmRates); err != nil {
			return err
		}
	}
	return nil
}

func (j Jobs) withDefaults() Jobs {
	j.Log = logger.OrNop(j.Log).Named("cron")
	if j.PendingTTL <= 0 {
		j.PendingTTL = 24 * time.Hour
	}
	if j.TrialWarning <= 0 {
		j.TrialWarning = 72 * time.Hour
	}
	if j.Timeout <= 0 {
		j.Timeout = 2 * time.Minute
	}
	return j
}

func (j Jobs) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), j.Timeout)
}

func (j Jobs) remindTrials() {
	ctx, cancel := j.context()
	defer cancel()

	sent, err := j.Trials.SendTrialReminders(ctx, j.TrialWarning)
	if err != nil {
		j.Log.Error("trial reminders failed", zap.Error(err))
		return
	}
	j.Log.Info("trial reminders sent", zap.Int("count", sent))
}

func (j Jobs) sweepPending() {
	ctx, cancel := j.context()
	defer cancel()

	if _, err := j.Pending.SweepStalePending(ctx, j.PendingTTL); err != nil {
		j.Log.Error("pending sweep failed", zap.Error(err))
	}
}

func (j Jobs) warmRates() {
	ctx, cancel := j.context()
	defer cancel()

	if err := j.Rates.RefreshRates(ctx); err != nil {
		j.Log.Warn("rate refresh failed", zap.Error(err))
	}
}
