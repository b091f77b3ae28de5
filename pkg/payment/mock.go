package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"livementor_backend/pkg/apperror"
)

// MockProvider is an in-memory Provider that records calls and returns
// configurable results.
type MockProvider struct {
	mu sync.Mutex

	Customers     map[string]*Customer
	Products      map[string]*Product
	Prices        map[string]*Price
	Subscriptions map[string]*Subscription
	Sessions      map[string]*CheckoutSession
	// Coupons maps subscriptionID -> coupon applied at creation.
	Coupons map[string]string
	// DefaultPaymentMethods maps customerID -> payment method ID.
	DefaultPaymentMethods map[string]string

	// Error fields allow tests to inject failures.
	FindCustomerErr        error
	CreateCustomerErr      error
	AttachPaymentMethodErr error
	GetProductErr          error
	CreateProductErr       error
	FindPriceErr           error
	CreatePriceErr         error
	CreateSubscriptionErr  error
	GetSubscriptionErr     error
	UpdateSubscriptionErr  error
	CreateCheckoutErr      error
	GetCheckoutErr         error
	ExpireCheckoutErr      error

	// InitialStatus overrides the status of new subscriptions. When empty
	// they start "trialing" with a trial and "incomplete" otherwise.
	InitialStatus string
	// WebhookSignature, when set, must match the signature header.
	WebhookSignature string
	Now              func() time.Time

	calls map[string]int
	seq   int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Customers:             make(map[string]*Customer),
		Products:              make(map[string]*Product),
		Prices:                make(map[string]*Price),
		Subscriptions:         make(map[string]*Subscription),
		Sessions:              make(map[string]*CheckoutSession),
		Coupons:               make(map[string]string),
		DefaultPaymentMethods: make(map[string]string),
		Now:                   time.Now,
		calls:                 make(map[string]int),
	}
}

// CallCount returns how many times method was invoked.
func (m *MockProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of provider calls of any kind.
func (m *MockProvider) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockProvider) record(method string) {
	m.calls[method]++
}

func (m *MockProvider) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_mock_%d", prefix, m.seq)
}

func (m *MockProvider) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindCustomerByEmail")

	if m.FindCustomerErr != nil {
		return nil, m.FindCustomerErr
	}
	ids := make([]string, 0, len(m.Customers))
	for id := range m.Customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if c := m.Customers[id]; strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("customer with email %q: %w", email, ErrNotFound)
}

func (m *MockProvider) CreateCustomer(_ context.Context, in CustomerInput) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateCustomer")

	if m.CreateCustomerErr != nil {
		return nil, m.CreateCustomerErr
	}
	c := &Customer{ID: m.nextID("cus"), Email: in.Email, Name: in.Name}
	m.Customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MockProvider) AttachPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("AttachPaymentMethod")

	if m.AttachPaymentMethodErr != nil {
		return m.AttachPaymentMethodErr
	}
	if _, ok := m.Customers[customerID]; !ok {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	m.DefaultPaymentMethods[customerID] = paymentMethodID
	return nil
}

func (m *MockProvider) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetProduct")

	if m.GetProductErr != nil {
		return nil, m.GetProductErr
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MockProvider) CreateProduct(_ context.Context, in ProductInput) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateProduct")

	if m.CreateProductErr != nil {
		return nil, m.CreateProductErr
	}
	if _, ok := m.Products[in.ID]; ok {
		return nil, fmt.Errorf("product %s: %w", in.ID, ErrAlreadyExists)
	}
	p := &Product{ID: in.ID, Name: in.Name, Active: true, Metadata: in.Metadata}
	m.Products[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MockProvider) FindPriceByLookupKey(_ context.Context, lookupKey string) (*Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("FindPriceByLookupKey")

	if m.FindPriceErr != nil {
		return nil, m.FindPriceErr
	}
	if p := m.priceByLookupKey(lookupKey); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, fmt.Errorf("price with lookup key %q: %w", lookupKey, ErrNotFound)
}

// CreatePrice replays the original price for a repeated lookup key, the way
// the provider replays a repeated idempotency key.
func (m *MockProvider) CreatePrice(_ context.Context, in PriceInput) (*Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreatePrice")

	if m.CreatePriceErr != nil {
		return nil, m.CreatePriceErr
	}
	if _, ok := m.Products[in.ProductID]; !ok {
		return nil, fmt.Errorf("product %s: %w", in.ProductID, ErrNotFound)
	}
	if p := m.priceByLookupKey(in.LookupKey); p != nil {
		cp := *p
		return &cp, nil
	}
	p := &Price{
		ID:         m.nextID("price"),
		ProductID:  in.ProductID,
		LookupKey:  in.LookupKey,
		Currency:   strings.ToUpper(in.Currency),
		UnitAmount: in.UnitAmount,
		Interval:   in.Interval,
		Active:     true,
		Metadata:   in.Metadata,
	}
	m.Prices[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *MockProvider) priceByLookupKey(key string) *Price {
	for _, p := range m.Prices {
		if p.LookupKey == key && p.Active {
			return p
		}
	}
	return nil
}

func (m *MockProvider) CreateSubscription(_ context.Context, in SubscriptionInput) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateSubscription")

	if m.CreateSubscriptionErr != nil {
		return nil, m.CreateSubscriptionErr
	}
	if _, ok := m.Customers[in.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %s: %w", in.CustomerID, ErrNotFound)
	}
	price, ok := m.Prices[in.PriceID]
	if !ok {
		return nil, fmt.Errorf("price %s: %w", in.PriceID, ErrNotFound)
	}

	now := m.Now().UTC().Truncate(time.Second)
	sub := &Subscription{
		ID:                 m.nextID("sub"),
		CustomerID:         in.CustomerID,
		Status:             "incomplete",
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		Created:            now,
		PriceID:            price.ID,
		UnitAmount:         price.UnitAmount,
		Currency:           price.Currency,
		Metadata:           in.Metadata,
	}
	if in.TrialPeriodDays != nil && *in.TrialPeriodDays > 0 {
		end := now.AddDate(0, 0, int(*in.TrialPeriodDays))
		sub.Status = "trialing"
		sub.TrialStart = &now
		sub.TrialEnd = &end
		sub.CurrentPeriodEnd = end
	}
	if m.InitialStatus != "" {
		sub.Status = m.InitialStatus
	}
	invID := m.nextID("in")
	sub.LatestInvoice = &Invoice{
		ID:                  invID,
		SubscriptionID:      sub.ID,
		Status:              "open",
		AmountDue:           price.UnitAmount,
		Currency:            price.Currency,
		PaymentIntentID:     "pi_" + invID,
		PaymentIntentStatus: "requires_payment_method",
		ClientSecret:        "pi_" + invID + "_secret",
		Created:             now,
	}
	m.Subscriptions[sub.ID] = sub
	if in.Coupon != "" {
		m.Coupons[sub.ID] = in.Coupon
	}
	return cloneSubscription(sub), nil
}

func (m *MockProvider) GetSubscription(_ context.Context, id string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetSubscription")

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}
	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return cloneSubscription(sub), nil
}

func (m *MockProvider) ListSubscriptions(_ context.Context, customerID string) ([]*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListSubscriptions")

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}
	var out []*Subscription
	for _, sub := range m.Subscriptions {
		if sub.CustomerID == customerID {
			out = append(out, cloneSubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockProvider) SetCancelAtPeriodEnd(_ context.Context, id string, cancel bool) (*Subscription, error) {
	return m.mutate("SetCancelAtPeriodEnd", id, func(s *Subscription) {
		s.CancelAtPeriodEnd = cancel
	})
}

func (m *MockProvider) CancelSubscription(_ context.Context, id string) (*Subscription, error) {
	return m.mutate("CancelSubscription", id, func(s *Subscription) {
		now := m.Now().UTC()
		s.Status = "canceled"
		s.CanceledAt = &now
	})
}

func (m *MockProvider) PauseSubscription(_ context.Context, id string) (*Subscription, error) {
	return m.mutate("PauseSubscription", id, func(s *Subscription) {
		s.Status = "paused"
	})
}

func (m *MockProvider) ResumeSubscription(_ context.Context, id string) (*Subscription, error) {
	return m.mutate("ResumeSubscription", id, func(s *Subscription) {
		s.Status = "active"
	})
}

func (m *MockProvider) mutate(method, id string, fn func(*Subscription)) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(method)

	if m.UpdateSubscriptionErr != nil {
		return nil, m.UpdateSubscriptionErr
	}
	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	fn(sub)
	return cloneSubscription(sub), nil
}

func (m *MockProvider) CreateCheckoutSession(_ context.Context, in CheckoutInput) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateCheckoutSession")

	if m.CreateCheckoutErr != nil {
		return nil, m.CreateCheckoutErr
	}
	id := m.nextID("cs")
	s := &CheckoutSession{
		ID:            id,
		URL:           "https://checkout.example.test/" + id,
		Status:        CheckoutOpen,
		PaymentStatus: "unpaid",
		AmountTotal:   in.UnitAmount,
		Currency:      strings.ToUpper(in.Currency),
		CustomerEmail: in.CustomerEmail,
		Metadata:      in.Metadata,
	}
	m.Sessions[id] = s
	cp := *s
	return &cp, nil
}

func (m *MockProvider) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("GetCheckoutSession")

	if m.GetCheckoutErr != nil {
		return nil, m.GetCheckoutErr
	}
	s, ok := m.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("checkout session %s: %w", id, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *MockProvider) ExpireCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ExpireCheckoutSession")

	if m.ExpireCheckoutErr != nil {
		return nil, m.ExpireCheckoutErr
	}
	s, ok := m.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("checkout session %s: %w", id, ErrNotFound)
	}
	if s.Status != CheckoutOpen {
		return nil, &apperror.ProviderError{Code: "checkout_not_open", Message: "checkout session " + id + " is not open", StatusCode: 400}
	}
	s.Status = CheckoutExpired
	cp := *s
	return &cp, nil
}

// MarkCheckoutProcessing simulates a delayed payment method: the customer
// finished checkout but the funds have not settled.
func (m *MockProvider) MarkCheckoutProcessing(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sessions[id]; ok {
		s.Status = CheckoutComplete
		s.PaymentStatus = "unpaid"
	}
}

// MarkCheckoutPaid simulates the customer completing payment.
func (m *MockProvider) MarkCheckoutPaid(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sessions[id]; ok {
		s.Status = CheckoutComplete
		s.PaymentStatus = CheckoutPaid
		s.PaymentIntentID = "pi_" + id
	}
}

// SetSubscriptionStatus changes a stored subscription as if the provider
// had moved it on its own.
func (m *MockProvider) SetSubscriptionStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Subscriptions[id]; ok {
		s.Status = status
	}
}

// ParseWebhook accepts payloads produced by MockWebhookPayload.
func (m *MockProvider) ParseWebhook(payload []byte, signature string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ParseWebhook")

	if m.WebhookSignature != "" && signature != m.WebhookSignature {
		return nil, fmt.Errorf("webhook signature verification failed")
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return &ev, nil
}

// MockWebhookPayload encodes ev the way MockProvider.ParseWebhook expects.
func MockWebhookPayload(ev Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}

func cloneSubscription(s *Subscription) *Subscription {
	cp := *s
	if s.LatestInvoice != nil {
		inv := *s.LatestInvoice
		cp.LatestInvoice = &inv
	}
	return &cp
}

var _ Provider = (*MockProvider)(nil)
