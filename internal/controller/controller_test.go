package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livementor_backend/internal/middleware"
	"livementor_backend/internal/repository"
	"livementor_backend/internal/testutil"
	"livementor_backend/pkg/apperror"
	"livementor_backend/pkg/payment"
	"livementor_backend/pkg/utils/jwt"
)

func call(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"validation", apperror.Invalid("amount", "must be greater than 0"), http.StatusBadRequest, "Validation failed"},
		{"not found", apperror.NotFound("course", "9"), http.StatusNotFound, `course "9" not found`},
		{"provider 4xx", &apperror.ProviderError{Code: "card_declined", StatusCode: 402}, http.StatusPaymentRequired, "Payment provider could not process the request, please try again"},
		{"provider 5xx", &apperror.ProviderError{Code: "api_error", StatusCode: 500}, http.StatusBadGateway, "Payment provider could not process the request, please try again"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(ctx *fiber.Ctx) error { return respondError(ctx, zap.NewNop(), c.err) })

			code, body := call(t, app, http.MethodGet, "/", nil, nil)
			assert.Equal(t, c.code, code)
			assert.Equal(t, c.msg, body["error"])
			assert.NotContains(t, body, "db down")
		})
	}
}

func TestAuthController(t *testing.T) {
	db := testutil.NewDB(t)
	tokens := jwt.NewManager("test-secret", time.Hour)
	auth := NewAuthController(repository.NewStudentRepository(db), tokens, nil, nil)

	app := fiber.New()
	app.Post("/register", auth.Register)
	app.Post("/login", auth.Login)
	app.Get("/me", middleware.AuthMiddleware(tokens), auth.GetMe)

	code, body := call(t, app, http.MethodPost, "/register", RegisterInput{
		Email:     "Ada@Example.com",
		Password:  "correct horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, nil)
	require.Equal(t, http.StatusCreated, code, body)
	require.NotEmpty(t, body["token"])

	code, body = call(t, app, http.MethodPost, "/register", RegisterInput{
		Email: "ada@example.com", Password: "correct horse", FirstName: "Ada",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already exists", body["error"])

	code, body = call(t, app, http.MethodPost, "/register", RegisterInput{Email: "nope", Password: "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	fields, _ := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "firstName")

	code, _ = call(t, app, http.MethodPost, "/login", LoginInput{Email: "ada@example.com", Password: "wrong password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = call(t, app, http.MethodPost, "/login", LoginInput{Email: "ADA@example.com", Password: "correct horse"}, nil)
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)

	code, body = call(t, app, http.MethodGet, "/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, code)
	user, _ := body["user"].(map[string]interface{})
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "Ada Lovelace", user["fullName"])

	code, _ = call(t, app, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

type stubSubscriptionEvents struct {
	events []*payment.Event
	err    error
}

func (s *stubSubscriptionEvents) ApplyWebhookEvent(_ context.Context, ev *payment.Event) error {
	s.events = append(s.events, ev)
	return s.err
}

type stubCheckoutEvents struct {
	events []*payment.Event
}

func (s *stubCheckoutEvents) ConfirmFromEvent(_ context.Context, ev *payment.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func TestHandleStripeWebhook(t *testing.T) {
	provider := payment.NewMockProvider()
	provider.WebhookSignature = "whsec_test"
	subs := &stubSubscriptionEvents{}
	checkouts := &stubCheckoutEvents{}
	h := NewWebhookController(provider, subs, checkouts, nil, nil)

	app := fiber.New()
	app.Post("/webhook", h.HandleStripeWebhook)
	signed := map[string]string{"Stripe-Signature": "whsec_test"}

	code, _ := call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID: "evt_1", Type: payment.EventInvoicePaid,
	}), map[string]string{"Stripe-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, subs.events)

	code, _ = call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID:      "evt_2",
		Type:    payment.EventInvoiceFailed,
		Invoice: &payment.Invoice{ID: "in_1", SubscriptionID: "sub_1"},
	}), signed)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, subs.events, 1)
	assert.Equal(t, "in_1", subs.events[0].Invoice.ID)

	code, _ = call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID:              "evt_3",
		Type:            payment.EventCheckoutCompleted,
		CheckoutSession: &payment.CheckoutSession{ID: "cs_1"},
	}), signed)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, checkouts.events, 1)

	code, _ = call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID: "evt_3b", Type: payment.EventCheckoutAsyncSucceeded,
		CheckoutSession: &payment.CheckoutSession{ID: "cs_1", PaymentStatus: payment.CheckoutPaid},
	}), signed)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, checkouts.events, 2, "delayed payments reconcile on async success")
	assert.Equal(t, payment.EventCheckoutAsyncSucceeded, checkouts.events[1].Type)

	code, _ = call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID: "evt_4", Type: "charge.refunded",
	}), signed)
	assert.Equal(t, http.StatusOK, code, "unhandled types are acknowledged")
	assert.Len(t, subs.events, 1)

	subs.err = errors.New("db locked")
	code, _ = call(t, app, http.MethodPost, "/webhook", payment.MockWebhookPayload(payment.Event{
		ID: "evt_5", Type: payment.EventSubscriptionUpdated, Subscription: &payment.Subscription{ID: "sub_1"},
	}), signed)
	assert.Equal(t, http.StatusInternalServerError, code, "failures ask the provider to retry")
}
