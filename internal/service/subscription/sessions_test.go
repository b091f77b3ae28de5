package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/billing"
)

func TestWeekBounds(t *testing.T) {
	cases := []struct {
		at   time.Time
		want time.Time
	}{
		{time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		// Crosses a month boundary.
		{time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)},
		// Local time on Monday morning east of UTC is still Sunday in UTC.
		{time.Date(2026, 10, 19, 1, 0, 0, 0, time.FixedZone("CET", 2*3600)), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		start, end := weekBounds(c.at)
		assert.Equal(t, c.want, start, c.at.String())
		assert.Equal(t, c.want.AddDate(0, 0, 7), end)
	}
}

func day(d, hour int) time.Time {
	return time.Date(2026, 10, d, hour, 0, 0, 0, time.UTC)
}

func TestScheduleSession_WeeklyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	thu, err := f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(15, 18)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, thu.DurationHours)
	assert.Equal(t, billing.OneOnOne, thu.Format)
	assert.Equal(t, model.SessionScheduled, thu.Status)

	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(16, 18), DurationHours: 1.5})
	require.NoError(t, err)

	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(18, 10)})
	assert.True(t, apperror.IsValidation(err), "third session in the plan week")

	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(19, 10)})
	require.NoError(t, err, "next week has its own allowance")

	_, err = f.svc.CancelSession(ctx, thu.ID)
	require.NoError(t, err)
	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(18, 10)})
	assert.NoError(t, err, "canceled sessions free their slot")

	stored, err := f.svc.Retrieve(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Sessions, 4)
	require.NotNil(t, stored.NextSession)
	assert.Equal(t, day(16, 18), stored.NextSession.ScheduledAt.UTC())
}

func TestScheduleSession_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	incomplete := f.createWithStatus(t, "")
	_, err := f.svc.ScheduleSession(ctx, incomplete.ID, ScheduleRequest{ScheduledAt: day(15, 18)})
	assert.True(t, apperror.IsValidation(err))

	active := f.createWithStatus(t, "active")
	_, err = f.svc.ScheduleSession(ctx, active.ID, ScheduleRequest{ScheduledAt: day(13, 18)})
	assert.True(t, apperror.IsValidation(err), "past date")

	_, err = f.svc.ScheduleSession(ctx, active.ID, ScheduleRequest{})
	assert.True(t, apperror.IsValidation(err), "missing date")

	_, err = f.svc.ScheduleSession(ctx, active.ID, ScheduleRequest{ScheduledAt: day(15, 18), DurationHours: -1})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.svc.ScheduleSession(ctx, "sub_nope", ScheduleRequest{ScheduledAt: day(15, 18)})
	assert.True(t, apperror.IsNotFound(err))
}

func TestSessionStatusChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	first, err := f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(15, 18)})
	require.NoError(t, err)
	second, err := f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(16, 18)})
	require.NoError(t, err)

	_, err = f.svc.CompleteSession(ctx, first.ID, "", "")
	assert.True(t, apperror.IsValidation(err), "cannot complete a future session")

	*f.now = day(17, 9)

	done, err := f.svc.CompleteSession(ctx, first.ID, "covered goroutines", "great pace")
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "great pace", done.Feedback)

	_, err = f.svc.CompleteSession(ctx, first.ID, "", "")
	assert.True(t, apperror.IsValidation(err), "already completed")

	missed, err := f.svc.MarkMissed(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionMissed, missed.Status)

	_, err = f.svc.RescheduleSession(ctx, second.ID, day(20, 10))
	assert.True(t, apperror.IsValidation(err), "only scheduled sessions move")
}

func TestRescheduleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	a, err := f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(15, 18)})
	require.NoError(t, err)
	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(16, 18)})
	require.NoError(t, err)

	moved, err := f.svc.RescheduleSession(ctx, a.ID, day(17, 18))
	require.NoError(t, err, "moving within the same week does not count itself")
	assert.Equal(t, day(17, 18), moved.ScheduledAt)

	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(20, 18)})
	require.NoError(t, err)
	_, err = f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(21, 18)})
	require.NoError(t, err)

	_, err = f.svc.RescheduleSession(ctx, a.ID, day(22, 18))
	assert.True(t, apperror.IsValidation(err), "target week is full")

	owner, err := f.svc.SubscriptionForSession(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, owner.ID)
}

func TestRescheduleSession_RequiresLiveSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	rec, err := f.svc.ScheduleSession(ctx, sub.ID, ScheduleRequest{ScheduledAt: day(15, 18)})
	require.NoError(t, err)

	_, err = f.svc.Pause(ctx, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.RescheduleSession(ctx, rec.ID, day(16, 18))
	var v *apperror.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields["status"], "paused subscription")

	_, err = f.svc.Resume(ctx, sub.ID)
	require.NoError(t, err)
	moved, err := f.svc.RescheduleSession(ctx, rec.ID, day(16, 18))
	require.NoError(t, err)
	assert.Equal(t, day(16, 18), moved.ScheduledAt)

	_, err = f.svc.CancelNow(ctx, sub.ID)
	require.NoError(t, err)
	_, err = f.svc.RescheduleSession(ctx, rec.ID, day(17, 18))
	assert.True(t, apperror.IsValidation(err), "canceled subscription")
}
