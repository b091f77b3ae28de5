package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is wrapped by Get/Find calls when the provider has no such object.
	ErrNotFound = errors.New("payment: resource not found")
	// ErrAlreadyExists is wrapped by create calls that lost a race on a deterministic ID.
	ErrAlreadyExists = errors.New("payment: resource already exists")
)

// Provider abstracts the recurring-billing provider. Nothing outside this
// package sees provider SDK types.
type Provider interface {
	// FindCustomerByEmail returns the oldest matching customer, or ErrNotFound.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error)
	// AttachPaymentMethod attaches pm to the customer and makes it the default
	// for invoices.
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	GetProduct(ctx context.Context, id string) (*Product, error)
	// CreateProduct creates a product with a caller-chosen ID.
	CreateProduct(ctx context.Context, in ProductInput) (*Product, error)
	// FindPriceByLookupKey returns the active price with the lookup key, or ErrNotFound.
	FindPriceByLookupKey(ctx context.Context, lookupKey string) (*Price, error)
	CreatePrice(ctx context.Context, in PriceInput) (*Price, error)

	CreateSubscription(ctx context.Context, in SubscriptionInput) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	PauseSubscription(ctx context.Context, id string) (*Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*Subscription, error)

	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	// ExpireCheckoutSession closes an open checkout so it can no longer be paid.
	ExpireCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)

	// ParseWebhook verifies the signature and decodes the event.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type Customer struct {
	ID    string
	Email string
	Name  string
}

type CustomerInput struct {
	Email    string
	Name     string
	Phone    string
	Metadata map[string]string
}

type Product struct {
	ID       string
	Name     string
	Active   bool
	Metadata map[string]string
}

type ProductInput struct {
	ID          string
	Name        string
	Description string
	Metadata    map[string]string
}

type Price struct {
	ID         string
	ProductID  string
	LookupKey  string
	Currency   string
	UnitAmount int64
	Interval   string
	Active     bool
	Metadata   map[string]string
}

type PriceInput struct {
	ProductID  string
	LookupKey  string
	Currency   string
	UnitAmount int64
	Interval   string
	Nickname   string
	Metadata   map[string]string
}

type SubscriptionInput struct {
	CustomerID      string
	PriceID         string
	TrialPeriodDays *int64
	Coupon          string
	Metadata        map[string]string
}

// Subscription is the provider's view of a subscription, already converted
// to plain Go types.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	Created            time.Time
	PriceID            string
	UnitAmount         int64
	Currency           string
	Metadata           map[string]string
	LatestInvoice      *Invoice
}

type Invoice struct {
	ID                  string
	SubscriptionID      string
	CustomerEmail       string
	Status              string
	AmountDue           int64
	AmountPaid          int64
	Currency            string
	HostedURL           string
	PDFURL              string
	PaymentIntentID     string
	PaymentIntentStatus string
	ClientSecret        string
	Created             time.Time
}

type CheckoutInput struct {
	ProductName       string
	Description       string
	Currency          string
	UnitAmount        int64
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

const CheckoutPaid = "paid"

// Checkout session statuses.
const (
	CheckoutOpen     = "open"
	CheckoutComplete = "complete"
	CheckoutExpired  = "expired"
)

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	PaymentIntentID string
	Metadata        map[string]string
}

// Event is a verified webhook notification. Exactly one of the payload
// pointers is set for the event types this service understands.
type Event struct {
	ID              string
	Type            string
	Subscription    *Subscription
	Invoice         *Invoice
	CheckoutSession *CheckoutSession
}
