package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobs struct {
	within    time.Duration
	olderThan time.Duration
	refreshed int
	err       error
}

func (s *stubJobs) SendTrialReminders(_ context.Context, within time.Duration) (int, error) {
	s.within = within
	return 2, s.err
}

func (s *stubJobs) SweepStalePending(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 1, s.err
}

func (s *stubJobs) RefreshRates(context.Context) error {
	s.refreshed++
	return s.err
}

func TestRegister(t *testing.T) {
	stub := &stubJobs{}
	c := cron.New()
	require.NoError(t, Register(c, Jobs{Trials: stub, Pending: stub, Rates: stub}))
	assert.Len(t, c.Entries(), 3)

	c = cron.New()
	require.NoError(t, Register(c, Jobs{Pending: stub}))
	assert.Len(t, c.Entries(), 1)
}

func TestJobsUseDefaults(t *testing.T) {
	stub := &stubJobs{}
	j := Jobs{Trials: stub, Pending: stub, Rates: stub}.withDefaults()

	j.remindTrials()
	j.sweepPending()
	j.warmRates()

	assert.Equal(t, 72*time.Hour, stub.within)
	assert.Equal(t, 24*time.Hour, stub.olderThan)
	assert.Equal(t, 1, stub.refreshed)
}

func TestJobsSurviveErrors(t *testing.T) {
	stub := &stubJobs{err: errors.New("db gone")}
	j := Jobs{Trials: stub, Pending: stub, Rates: stub, PendingTTL: time.Hour}.withDefaults()

	assert.NotPanics(t, func() {
		j.remindTrials()
		j.sweepPending()
		j.warmRates()
	})
	assert.Equal(t, time.Hour, stub.olderThan)
}
