package subscription

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/billing"
	"livementor_backend/pkg/email"
	"livementor_backend/pkg/payment"
)

// Retrieve returns the provider view of a subscription merged with the
// local plan and session history. Either side may be missing pieces.
func (s *Service) Retrieve(ctx context.Context, id string) (*model.CourseSubscription, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.Invalid("subscriptionId", "is required")
	}

	remote, err := s.provider.GetSubscription(ctx, id)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return nil, apperror.NotFound("subscription", id)
		}
		return nil, err
	}

	local, err := s.subscriptions.Get(ctx, id)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	return s.merge(local, remote), nil
}

// ListForCustomer merges every provider subscription of a customer with
// whatever is stored locally.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]model.CourseSubscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, apperror.Invalid("customerId", "is required")
	}

	remote, err := s.provider.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}

	stored, err := s.subscriptions.ListByCustomer(ctx, customerID)
	if err != nil {
		s.log.Warn("load local subscriptions failed", zap.String("customer", customerID), zap.Error(err))
	}
	byID := make(map[string]*model.CourseSubscription, len(stored))
	for i := range stored {
		byID[stored[i].ID] = &stored[i]
	}

	out := make([]model.CourseSubscription, 0, len(remote))
	for _, r := range remote {
		out = append(out, *s.merge(byID[r.ID], r))
	}
	return out, nil
}

func (s *Service) merge(local *model.CourseSubscription, remote *payment.Subscription) *model.CourseSubscription {
	sub := local
	if sub == nil {
		sub = &model.CourseSubscription{ID: remote.ID}
		if id, err := strconv.ParseUint(remote.Metadata["course_id"], 10, 64); err == nil {
			sub.CourseID = uint(id)
		}
		if id, err := strconv.ParseUint(remote.Metadata["student_id"], 10, 64); err == nil {
			sub.StudentID = uint(id)
		}
	}
	applySnapshot(sub, remote)
	sub.SetNextSession(s.now())
	return sub
}

// CancelAtPeriodEnd keeps access until the current period closes.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, id string) (*model.CourseSubscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, stateError(sub.Status, "cancel")
	}
	if sub.CancelAtPeriodEnd {
		return sub, nil
	}

	remote, err := s.provider.SetCancelAtPeriodEnd(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, sub, remote); err != nil {
		return nil, err
	}
	s.notifyCancelled(ctx, sub, true)
	return sub, nil
}

func (s *Service) CancelNow(ctx context.Context, id string) (*model.CourseSubscription, error) {
	return s.transition(ctx, id, model.StatusCanceled, "cancel", s.provider.CancelSubscription)
}

func (s *Service) Pause(ctx context.Context, id string) (*model.CourseSubscription, error) {
	return s.transition(ctx, id, model.StatusPaused, "pause", s.provider.PauseSubscription)
}

// Resume only applies to paused subscriptions; past_due ones recover
// through a paid invoice.
func (s *Service) Resume(ctx context.Context, id string) (*model.CourseSubscription, error) {
	return s.transition(ctx, id, model.StatusActive, "resume", s.provider.ResumeSubscription)
}

type providerCall func(ctx context.Context, id string) (*payment.Subscription, error)

func (s *Service) transition(ctx context.Context, id string, next model.SubscriptionStatus, action string, call providerCall) (*model.CourseSubscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.Status.CanTransitionTo(next) || (next == model.StatusActive && sub.Status != model.StatusPaused) {
		return nil, stateError(sub.Status, action)
	}

	remote, err := call(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store(ctx, sub, remote); err != nil {
		return nil, err
	}
	s.log.Info("subscription "+action, zap.String("subscription", id), zap.String("status", string(sub.Status)))

	if next == model.StatusCanceled {
		s.notifyCancelled(ctx, sub, false)
	}
	return sub, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.CourseSubscription, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.Invalid("subscriptionId", "is required")
	}
	return s.subscriptions.Get(ctx, id)
}

func (s *Service) store(ctx context.Context, sub *model.CourseSubscription, remote *payment.Subscription) error {
	applySnapshot(sub, remote)
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ID, err)
	}
	sub.SetNextSession(s.now())
	return nil
}

func stateError(status model.SubscriptionStatus, action string) error {
	return apperror.Invalid("status", fmt.Sprintf("cannot %s a %s subscription", action, status))
}

// ApplyWebhookEvent folds a verified provider event into the local record.
// Unknown subscriptions and unhandled event types are ignored.
func (s *Service) ApplyWebhookEvent(ctx context.Context, ev *payment.Event) error {
	switch ev.Type {
	case payment.EventSubscriptionCreated, payment.EventSubscriptionUpdated,
		payment.EventSubscriptionDeleted, payment.EventSubscriptionPaused,
		payment.EventSubscriptionResumed:
		if ev.Subscription == nil {
			return apperror.Invalid("data", "event carries no subscription")
		}
		return s.applySubscriptionEvent(ctx, ev)
	case payment.EventInvoiceFailed, payment.EventInvoicePaid:
		if ev.Invoice == nil {
			return apperror.Invalid("data", "event carries no invoice")
		}
		return s.applyInvoiceEvent(ctx, ev)
	}
	return nil
}

func (s *Service) applySubscriptionEvent(ctx context.Context, ev *payment.Event) error {
	remote := ev.Subscription
	sub, err := s.subscriptions.Get(ctx, remote.ID)
	if apperror.IsNotFound(err) {
		s.log.Info("webhook for unknown subscription", zap.String("event", ev.ID), zap.String("subscription", remote.ID))
		return nil
	}
	if err != nil {
		return err
	}

	next := model.SubscriptionStatus(remote.Status)
	if ev.Type == payment.EventSubscriptionDeleted {
		next = model.StatusCanceled
	}

	if next != sub.Status && !sub.Status.CanTransitionTo(next) {
		s.log.Warn("ignoring disallowed transition",
			zap.String("event", ev.ID),
			zap.String("subscription", sub.ID),
			zap.String("from", string(sub.Status)),
			zap.String("to", string(next)))
		return nil
	}

	prev := sub.Status
	applySnapshot(sub, remote)
	sub.Status = next
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ID, err)
	}

	if prev != next && next == model.StatusCanceled {
		s.notifyCancelled(ctx, sub, false)
	}
	return nil
}

func (s *Service) applyInvoiceEvent(ctx context.Context, ev *payment.Event) error {
	inv := ev.Invoice
	if inv.SubscriptionID == "" {
		return nil
	}
	sub, err := s.subscriptions.Get(ctx, inv.SubscriptionID)
	if apperror.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	next := model.StatusActive
	if ev.Type == payment.EventInvoiceFailed {
		next = model.StatusPastDue
	}

	sub.LatestInvoice = toInvoice(inv)
	if next != sub.Status {
		if !sub.Status.CanTransitionTo(next) {
			s.log.Warn("ignoring disallowed transition",
				zap.String("event", ev.ID),
				zap.String("subscription", sub.ID),
				zap.String("from", string(sub.Status)),
				zap.String("to", string(next)))
		} else {
			sub.Status = next
		}
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ID, err)
	}

	if ev.Type == payment.EventInvoiceFailed {
		plan := sub.Plan.Data()
		to := sub.StudentEmail
		if to == "" {
			to = inv.CustomerEmail
		}
		s.notify(ctx, "payment failed", func(n Notifier) error {
			return n.SendPaymentFailedEmail(ctx, to, email.PaymentFailedData{
				CourseTitle: plan.CourseName,
				AmountDue:   strings.ToUpper(inv.Currency) + " " + billing.DisplayAmount(billing.FromMinorUnits(inv.AmountDue, inv.Currency), inv.Currency),
				InvoiceURL:  inv.HostedURL,
			})
		})
	}
	return nil
}

func (s *Service) notifyCancelled(ctx context.Context, sub *model.CourseSubscription, atPeriodEnd bool) {
	if sub.StudentEmail == "" {
		return
	}
	s.notify(ctx, "subscription cancelled", func(n Notifier) error {
		return n.SendSubscriptionCancelledEmail(ctx, sub.StudentEmail, email.SubscriptionCancelledData{
			CourseTitle: sub.Plan.Data().CourseName,
			AtPeriodEnd: atPeriodEnd,
			EndsAt:      sub.CurrentPeriodEnd,
		})
	})
}
