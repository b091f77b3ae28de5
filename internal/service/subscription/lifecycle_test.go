package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livementor_backend/internal/model"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/payment"
)

func (f *fixture) createWithStatus(t *testing.T, status string) *model.CourseSubscription {
	t.Helper()
	f.provider.InitialStatus = status
	res, err := f.svc.Create(context.Background(), f.request(2, 1))
	require.NoError(t, err)
	return res.Subscription
}

func TestLifecycle_PauseResumeCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	paused, err := f.svc.Pause(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, paused.Status)

	_, err = f.svc.Pause(ctx, sub.ID)
	assert.True(t, apperror.IsValidation(err))

	resumed, err := f.svc.Resume(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, resumed.Status)

	_, err = f.svc.Resume(ctx, sub.ID)
	assert.True(t, apperror.IsValidation(err), "resume of an active subscription")

	atEnd, err := f.svc.CancelAtPeriodEnd(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, atEnd.CancelAtPeriodEnd)
	assert.Equal(t, model.StatusActive, atEnd.Status)

	// Repeating is a no-op.
	_, err = f.svc.CancelAtPeriodEnd(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.provider.CallCount("SetCancelAtPeriodEnd"))

	canceled, err := f.svc.CancelNow(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)

	stored, err := f.svc.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCanceled, stored.Status)

	calls := f.provider.TotalCalls()
	_, err = f.svc.Resume(ctx, sub.ID)
	assert.True(t, apperror.IsValidation(err))
	_, err = f.svc.CancelAtPeriodEnd(ctx, sub.ID)
	assert.True(t, apperror.IsValidation(err))
	assert.Equal(t, calls, f.provider.TotalCalls(), "state machine is checked before the provider")

	require.Len(t, f.notifier.cancelled, 2)
	assert.True(t, f.notifier.cancelled[0].AtPeriodEnd)
	assert.False(t, f.notifier.cancelled[1].AtPeriodEnd)
}

func TestLifecycle_PauseRequiresActive(t *testing.T) {
	f := newFixture(t)
	sub := f.createWithStatus(t, "trialing")

	_, err := f.svc.Pause(context.Background(), sub.ID)
	assert.True(t, apperror.IsValidation(err))
	assert.Zero(t, f.provider.CallCount("PauseSubscription"))
}

func TestLifecycle_UnknownSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CancelNow(context.Background(), "sub_nope")
	assert.True(t, apperror.IsNotFound(err))
}

func TestLifecycle_ProviderFailureLeavesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")
	f.provider.UpdateSubscriptionErr = &apperror.ProviderError{Code: "api_error", StatusCode: 500}

	_, err := f.svc.CancelNow(ctx, sub.ID)
	assert.True(t, apperror.IsProvider(err))

	stored, err := f.svc.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, stored.Status)
}

func subscriptionEvent(typ string, sub *model.CourseSubscription, status string) *payment.Event {
	return &payment.Event{
		ID:   "evt_" + status,
		Type: typ,
		Subscription: &payment.Subscription{
			ID:                 sub.ID,
			CustomerID:         sub.CustomerID,
			Status:             status,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd.AddDate(0, 1, 0),
		},
	}
}

func TestApplyWebhookEvent_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "")
	require.Equal(t, model.StatusIncomplete, sub.Status)

	steps := []struct {
		name string
		ev   *payment.Event
		want model.SubscriptionStatus
	}{
		{"payment confirmed", subscriptionEvent(payment.EventSubscriptionUpdated, sub, "active"), model.StatusActive},
		{"back to trialing is ignored", subscriptionEvent(payment.EventSubscriptionUpdated, sub, "trialing"), model.StatusActive},
		{"invoice failed", &payment.Event{ID: "evt_inv1", Type: payment.EventInvoiceFailed, Invoice: &payment.Invoice{
			ID: "in_1", SubscriptionID: sub.ID, AmountDue: 32000, Currency: "usd", HostedURL: "https://pay.example.test/in_1",
		}}, model.StatusPastDue},
		{"invoice paid", &payment.Event{ID: "evt_inv2", Type: payment.EventInvoicePaid, Invoice: &payment.Invoice{
			ID: "in_2", SubscriptionID: sub.ID, Status: "paid", AmountPaid: 32000, Currency: "usd",
		}}, model.StatusActive},
		{"paused", subscriptionEvent(payment.EventSubscriptionPaused, sub, "paused"), model.StatusPaused},
		{"resumed", subscriptionEvent(payment.EventSubscriptionResumed, sub, "active"), model.StatusActive},
		{"deleted", subscriptionEvent(payment.EventSubscriptionDeleted, sub, "active"), model.StatusCanceled},
		{"terminal stays terminal", subscriptionEvent(payment.EventSubscriptionUpdated, sub, "active"), model.StatusCanceled},
	}

	for _, step := range steps {
		require.NoError(t, f.svc.ApplyWebhookEvent(ctx, step.ev), step.name)
		stored, err := f.svc.subscriptions.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, stored.Status, step.name)
	}

	stored, err := f.svc.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LatestInvoice)
	assert.Equal(t, "in_2", stored.LatestInvoice.ID)

	require.Len(t, f.notifier.failed, 1)
	assert.Equal(t, "USD 320.00", f.notifier.failed[0].AmountDue)
	assert.Equal(t, "https://pay.example.test/in_1", f.notifier.failed[0].InvoiceURL)
	assert.Len(t, f.notifier.cancelled, 1)
}

func TestApplyWebhookEvent_SameStatusRefreshesPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.createWithStatus(t, "active")

	ev := subscriptionEvent(payment.EventSubscriptionUpdated, sub, "active")
	require.NoError(t, f.svc.ApplyWebhookEvent(ctx, ev))

	stored, err := f.svc.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentPeriodEnd.Equal(ev.Subscription.CurrentPeriodEnd))
}

func TestApplyWebhookEvent_IgnoresUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ApplyWebhookEvent(ctx, &payment.Event{
		Type:         payment.EventSubscriptionUpdated,
		Subscription: &payment.Subscription{ID: "sub_other", Status: "active"},
	})
	assert.NoError(t, err)

	assert.NoError(t, f.svc.ApplyWebhookEvent(ctx, &payment.Event{Type: "charge.refunded"}))

	err = f.svc.ApplyWebhookEvent(ctx, &payment.Event{Type: payment.EventInvoicePaid})
	assert.True(t, apperror.IsValidation(err))
}

func TestSendTrialReminders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request(2, 1)
	req.TrialPeriodDays = trialDays(3)
	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	req.TrialPeriodDays = trialDays(30)
	_, err = f.svc.Create(ctx, req)
	require.NoError(t, err)

	sent, err := f.svc.SendTrialReminders(ctx, 72*time.Hour+time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, f.notifier.trials, 1)
	assert.Equal(t, "320.00 USD", f.notifier.trials[0].MonthlyTotal)

	sent, err = f.svc.SendTrialReminders(ctx, 72*time.Hour+time.Minute)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
