package subscription

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/email"
)

type ScheduleRequest struct {
	ScheduledAt   time.Time `json:"scheduledDate"`
	DurationHours float64   `json:"duration,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// weekBounds returns the Monday 00:00 UTC that starts t's ISO week and the
// start of the following week.
func weekBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 7)
}

// ScheduleSession books a mentoring session against an active or trialing
// subscription, holding the plan's weekly session count.
func (s *Service) ScheduleSession(ctx context.Context, subscriptionID string, req ScheduleRequest) (*model.SessionRecord, error) {
	sub, err := s.load(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := schedulable(sub); err != nil {
		return nil, err
	}

	custom := sub.Plan.Data().SessionCustomization
	if req.DurationHours == 0 {
		req.DurationHours = custom.HoursPerSession
	}
	if req.DurationHours <= 0 {
		return nil, apperror.Invalid("duration", "must be positive")
	}
	if err := s.checkSlot(ctx, sub, req.ScheduledAt, ""); err != nil {
		return nil, err
	}

	rec := &model.SessionRecord{
		SubscriptionID: sub.ID,
		ScheduledAt:    req.ScheduledAt.UTC(),
		DurationHours:  req.DurationHours,
		Format:         custom.SessionFormat,
		Notes:          req.Notes,
		Status:         model.SessionScheduled,
	}
	if err := s.sessions.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func schedulable(sub *model.CourseSubscription) error {
	if sub.Status != model.StatusActive && sub.Status != model.StatusTrialing {
		return apperror.Invalid("status", fmt.Sprintf("cannot schedule sessions on a %s subscription", sub.Status))
	}
	return nil
}

func (s *Service) checkSlot(ctx context.Context, sub *model.CourseSubscription, at time.Time, excludeID string) error {
	if at.IsZero() {
		return apperror.Invalid("scheduledDate", "is required")
	}
	if !at.After(s.now()) {
		return apperror.Invalid("scheduledDate", "must be in the future")
	}

	limit := sub.Plan.Data().SessionCustomization.SessionsPerWeek
	from, to := weekBounds(at)
	n, err := s.sessions.CountBetween(ctx, sub.ID, from, to, excludeID)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if int(n) >= limit {
		return apperror.Invalid("scheduledDate", fmt.Sprintf("plan allows %d sessions in the week of %s", limit, from.Format("2006-01-02")))
	}
	return nil
}

// SubscriptionForSession resolves the subscription a session belongs to.
func (s *Service) SubscriptionForSession(ctx context.Context, sessionID string) (*model.CourseSubscription, error) {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.subscriptions.Get(ctx, rec.SubscriptionID)
}

func (s *Service) CompleteSession(ctx context.Context, sessionID, notes, feedback string) (*model.SessionRecord, error) {
	return s.closeSession(ctx, sessionID, func(rec *model.SessionRecord) error {
		if rec.ScheduledAt.After(s.now()) {
			return apperror.Invalid("status", "session has not started yet")
		}
		now := s.now().UTC()
		rec.Status = model.SessionCompleted
		rec.CompletedAt = &now
		if notes != "" {
			rec.Notes = notes
		}
		rec.Feedback = feedback
		return nil
	})
}

func (s *Service) MarkMissed(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	return s.closeSession(ctx, sessionID, func(rec *model.SessionRecord) error {
		if rec.ScheduledAt.After(s.now()) {
			return apperror.Invalid("status", "session has not started yet")
		}
		rec.Status = model.SessionMissed
		return nil
	})
}

func (s *Service) CancelSession(ctx context.Context, sessionID string) (*model.SessionRecord, error) {
	return s.closeSession(ctx, sessionID, func(rec *model.SessionRecord) error {
		rec.Status = model.SessionCanceled
		return nil
	})
}

// RescheduleSession moves a scheduled session, re-checking the subscription
// status and the weekly limit of the target week.
func (s *Service) RescheduleSession(ctx context.Context, sessionID string, at time.Time) (*model.SessionRecord, error) {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.SessionScheduled {
		return nil, apperror.Invalid("status", fmt.Sprintf("cannot reschedule a %s session", rec.Status))
	}
	sub, err := s.subscriptions.Get(ctx, rec.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if err := schedulable(sub); err != nil {
		return nil, err
	}
	if err := s.checkSlot(ctx, sub, at, rec.ID); err != nil {
		return nil, err
	}

	rec.ScheduledAt = at.UTC()
	if err := s.sessions.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return rec, nil
}

// closeSession moves a scheduled session to a final state.
func (s *Service) closeSession(ctx context.Context, sessionID string, apply func(*model.SessionRecord) error) (*model.SessionRecord, error) {
	rec, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.SessionScheduled {
		return nil, apperror.Invalid("status", fmt.Sprintf("session is already %s", rec.Status))
	}
	if err := apply(rec); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return rec, nil
}

// SendTrialReminders emails students whose trial ends within the window and
// marks them so each is reminded once. It returns how many were sent.
func (s *Service) SendTrialReminders(ctx context.Context, within time.Duration) (int, error) {
	now := s.now()
	subs, err := s.subscriptions.TrialsEndingBetween(ctx, now, now.Add(within))
	if err != nil {
		return 0, fmt.Errorf("list ending trials: %w", err)
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		if sub.StudentEmail == "" || sub.TrialEnd == nil || s.notifier == nil {
			continue
		}
		plan := sub.Plan.Data()
		err := s.notifier.SendTrialEndingEmail(ctx, sub.StudentEmail, email.TrialEndingData{
			CourseTitle:  plan.CourseName,
			TrialEnd:     *sub.TrialEnd,
			MonthlyTotal: monthlyTotal(plan.BillingCalculation),
		})
		if err != nil {
			s.log.Warn("trial reminder failed", zap.String("subscription", sub.ID), zap.Error(err))
			continue
		}
		if err := s.subscriptions.MarkTrialReminded(ctx, sub.ID); err != nil {
			s.log.Warn("mark trial reminded failed", zap.String("subscription", sub.ID), zap.Error(err))
		}
		sent++
	}
	return sent, nil
}
