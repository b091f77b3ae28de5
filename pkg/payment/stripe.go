package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/paymentmethod"
	"github.com/stripe/stripe-go/v74/price"
	"github.com/stripe/stripe-go/v74/product"
	"github.com/stripe/stripe-go/v74/subscription"
	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeProvider implements Provider with the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

func NewStripeProvider(apiKey, webhookSecret string) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (p *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var found *stripe.Customer
	it := customer.List(params)
	for it.Next() {
		c := it.Customer()
		if found == nil || c.Created < found.Created {
			found = c
		}
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripeError("list customers", err)
	}
	if found == nil {
		return nil, fmt.Errorf("customer with email %q: %w", email, ErrNotFound)
	}
	return toCustomer(found), nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	if in.Phone != "" {
		params.Phone = stripe.String(in.Phone)
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := customer.New(params)
	if err != nil {
		return nil, wrapStripeError("create customer", err)
	}
	return toCustomer(c), nil
}

func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := paymentmethod.Attach(paymentMethodID, attach); err != nil {
		return wrapStripeError("attach payment method", err)
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	if _, err := customer.Update(customerID, update); err != nil {
		return wrapStripeError("set default payment method", err)
	}
	return nil
}

func (p *StripeProvider) GetProduct(ctx context.Context, id string) (*Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx

	prod, err := product.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("get product "+id, err)
	}
	return toProduct(prod), nil
}

func (p *StripeProvider) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	params := &stripe.ProductParams{
		ID:   stripe.String(in.ID),
		Name: stripe.String(in.Name),
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey("product-" + in.ID)
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	prod, err := product.New(params)
	if err != nil {
		return nil, wrapStripeError("create product "+in.ID, err)
	}
	return toProduct(prod), nil
}

func (p *StripeProvider) FindPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error) {
	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
		Active:     stripe.Bool(true),
	}
	params.Context = ctx

	it := price.List(params)
	for it.Next() {
		return toPrice(it.Price()), nil
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripeError("list prices", err)
	}
	return nil, fmt.Errorf("price with lookup key %q: %w", lookupKey, ErrNotFound)
}

func (p *StripeProvider) CreatePrice(ctx context.Context, in PriceInput) (*Price, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(in.ProductID),
		Currency:   stripe.String(strings.ToLower(in.Currency)),
		UnitAmount: stripe.Int64(in.UnitAmount),
		LookupKey:  stripe.String(in.LookupKey),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(in.Interval),
		},
	}
	if in.Nickname != "" {
		params.Nickname = stripe.String(in.Nickname)
	}
	params.Context = ctx
	params.SetIdempotencyKey("price-" + in.LookupKey)
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	pr, err := price.New(params)
	if err != nil {
		return nil, wrapStripeError("create price "+in.LookupKey, err)
	}
	return toPrice(pr), nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, in SubscriptionInput) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(in.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if in.TrialPeriodDays != nil && *in.TrialPeriodDays > 0 {
		params.TrialPeriodDays = stripe.Int64(*in.TrialPeriodDays)
	}
	if in.Coupon != "" {
		params.Coupon = stripe.String(in.Coupon)
	}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	sub, err := subscription.New(params)
	if err != nil {
		return nil, wrapStripeError("create subscription", err)
	}
	return toSubscription(sub), nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("get subscription "+id, err)
	}
	return toSubscription(sub), nil
}

func (p *StripeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.AddExpand("data.latest_invoice")

	var out []*Subscription
	it := subscription.List(params)
	for it.Next() {
		out = append(out, toSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripeError("list subscriptions", err)
	}
	return out, nil
}

func (p *StripeProvider) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.Context = ctx
	return p.update(id, params)
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := subscription.Cancel(id, params)
	if err != nil {
		return nil, wrapStripeError("cancel subscription "+id, err)
	}
	return toSubscription(sub), nil
}

func (p *StripeProvider) PauseSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	params.Context = ctx
	return p.update(id, params)
}

func (p *StripeProvider) ResumeSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExtra("pause_collection", "")
	return p.update(id, params)
}

func (p *StripeProvider) update(id string, params *stripe.SubscriptionParams) (*Subscription, error) {
	params.AddExpand("latest_invoice.payment_intent")
	sub, err := subscription.Update(id, params)
	if err != nil {
		return nil, wrapStripeError("update subscription "+id, err)
	}
	return toSubscription(sub), nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(in.Currency)),
					UnitAmount: stripe.Int64(in.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(in.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if in.Description != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(in.Description)
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	if in.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(in.ClientReferenceID)
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, wrapStripeError("create checkout session", err)
	}
	return toCheckoutSession(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(id, params)
	if err != nil {
		return nil, wrapStripeError("get checkout session "+id, err)
	}
	return toCheckoutSession(s), nil
}

func (p *StripeProvider) ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	s, err := session.Expire(id, params)
	if err != nil {
		return nil, wrapStripeError("expire checkout session "+id, err)
	}
	return toCheckoutSession(s), nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return toEvent(event)
}

var _ Provider = (*StripeProvider)(nil)
