package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"

	"livementor_backend/pkg/apperror"
)

func TestWrapStripeError(t *testing.T) {
	missing := wrapStripeError("get product course_1", &stripe.Error{
		Code:           stripe.ErrorCodeResourceMissing,
		HTTPStatusCode: 404,
		Msg:            "No such product: 'course_1'",
	})
	assert.True(t, errors.Is(missing, ErrNotFound))
	assert.True(t, apperror.IsProvider(missing))

	exists := wrapStripeError("create product course_1", &stripe.Error{
		Code:           "resource_already_exists",
		HTTPStatusCode: 400,
	})
	assert.True(t, errors.Is(exists, ErrAlreadyExists))

	declined := wrapStripeError("create subscription", &stripe.Error{
		Code:           "card_declined",
		HTTPStatusCode: 402,
		Msg:            "Your card was declined.",
	})
	var perr *apperror.ProviderError
	require.True(t, errors.As(declined, &perr))
	assert.Equal(t, "card_declined", perr.Code)
	assert.Equal(t, 402, perr.StatusCode)
	assert.False(t, errors.Is(declined, ErrNotFound))

	plain := wrapStripeError("list prices", errors.New("connection reset"))
	assert.True(t, apperror.IsProvider(plain))
}

func TestToEvent_Subscription(t *testing.T) {
	raw := `{
		"id": "sub_123",
		"object": "subscription",
		"status": "past_due",
		"customer": "cus_9",
		"cancel_at_period_end": true,
		"current_period_start": 1767225600,
		"current_period_end": 1769904000,
		"created": 1767225600,
		"currency": "usd",
		"metadata": {"course_id": "7"},
		"items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_1", "unit_amount": 32000, "currency": "usd"}}]}
	}`
	ev, err := toEvent(stripe.Event{
		ID:   "evt_1",
		Type: EventSubscriptionUpdated,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	})
	require.NoError(t, err)
	require.NotNil(t, ev.Subscription)

	sub := ev.Subscription
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, "cus_9", sub.CustomerID)
	assert.Equal(t, "past_due", sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, time.Unix(1769904000, 0).UTC(), sub.CurrentPeriodEnd)
	assert.Equal(t, "price_1", sub.PriceID)
	assert.EqualValues(t, 32000, sub.UnitAmount)
	assert.Equal(t, "USD", sub.Currency)
	assert.Equal(t, "7", sub.Metadata["course_id"])
	assert.Nil(t, sub.TrialEnd)
	assert.Nil(t, ev.Invoice)
}

func TestToEvent_InvoiceAndCheckout(t *testing.T) {
	inv, err := toEvent(stripe.Event{
		ID:   "evt_2",
		Type: EventInvoiceFailed,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"in_1","subscription":"sub_123","amount_due":32000,"currency":"usd","status":"open"}`)},
	})
	require.NoError(t, err)
	require.NotNil(t, inv.Invoice)
	assert.Equal(t, "sub_123", inv.Invoice.SubscriptionID)
	assert.EqualValues(t, 32000, inv.Invoice.AmountDue)

	cs, err := toEvent(stripe.Event{
		ID:   "evt_3",
		Type: EventCheckoutCompleted,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"cs_1","payment_status":"paid","amount_total":19900,"currency":"ngn","customer_details":{"email":"ada@example.com"}}`)},
	})
	require.NoError(t, err)
	require.NotNil(t, cs.CheckoutSession)
	assert.Equal(t, CheckoutPaid, cs.CheckoutSession.PaymentStatus)
	assert.Equal(t, "ada@example.com", cs.CheckoutSession.CustomerEmail)
	assert.Equal(t, "NGN", cs.CheckoutSession.Currency)

	other, err := toEvent(stripe.Event{ID: "evt_4", Type: "charge.refunded", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}})
	require.NoError(t, err)
	assert.Nil(t, other.Subscription)
	assert.Nil(t, other.Invoice)
	assert.Nil(t, other.CheckoutSession)
}

func TestMockProvider_CatalogReplay(t *testing.T) {
	m := NewMockProvider()
	ctx := context.Background()

	_, err := m.GetProduct(ctx, "course_1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = m.CreateProduct(ctx, ProductInput{ID: "course_1", Name: "Go"})
	require.NoError(t, err)
	_, err = m.CreateProduct(ctx, ProductInput{ID: "course_1", Name: "Go"})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	in := PriceInput{ProductID: "course_1", LookupKey: "k1", Currency: "usd", UnitAmount: 32000, Interval: "month"}
	first, err := m.CreatePrice(ctx, in)
	require.NoError(t, err)
	second, err := m.CreatePrice(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, m.Prices, 1)

	found, err := m.FindPriceByLookupKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 2, m.CallCount("CreatePrice"))
}

func TestMockProvider_SubscriptionLifecycle(t *testing.T) {
	m := NewMockProvider()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return fixed }
	ctx := context.Background()

	cus, err := m.CreateCustomer(ctx, CustomerInput{Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = m.CreateProduct(ctx, ProductInput{ID: "course_1"})
	require.NoError(t, err)
	pr, err := m.CreatePrice(ctx, PriceInput{ProductID: "course_1", LookupKey: "k", Currency: "USD", UnitAmount: 32000})
	require.NoError(t, err)

	trial := int64(7)
	sub, err := m.CreateSubscription(ctx, SubscriptionInput{CustomerID: cus.ID, PriceID: pr.ID, TrialPeriodDays: &trial})
	require.NoError(t, err)
	assert.Equal(t, "trialing", sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, fixed.AddDate(0, 0, 7), *sub.TrialEnd)
	require.NotNil(t, sub.LatestInvoice)
	assert.NotEmpty(t, sub.LatestInvoice.ClientSecret)

	paused, err := m.PauseSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "paused", paused.Status)

	canceled, err := m.CancelSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	list, err := m.ListSubscriptions(ctx, cus.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMockProvider_Webhook(t *testing.T) {
	m := NewMockProvider()
	m.WebhookSignature = "sig"

	payload := MockWebhookPayload(Event{ID: "evt_1", Type: EventSubscriptionDeleted, Subscription: &Subscription{ID: "sub_1", Status: "canceled"}})

	_, err := m.ParseWebhook(payload, "wrong")
	assert.Error(t, err)

	ev, err := m.ParseWebhook(payload, "sig")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", ev.Subscription.ID)
}
