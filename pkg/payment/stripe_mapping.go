package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"livementor_backend/pkg/apperror"
)

// Webhook event types the services react to.
const (
	EventSubscriptionCreated    = "customer.subscription.created"
	EventSubscriptionUpdated    = "customer.subscription.updated"
	EventSubscriptionDeleted    = "customer.subscription.deleted"
	EventSubscriptionPaused     = "customer.subscription.paused"
	EventSubscriptionResumed    = "customer.subscription.resumed"
	EventSubscriptionTrialEnd   = "customer.subscription.trial_will_end"
	EventInvoicePaid            = "invoice.paid"
	EventInvoiceFailed          = "invoice.payment_failed"
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

func wrapStripeError(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return &apperror.ProviderError{Message: fmt.Sprintf("%s: %v", op, err), Err: err}
	}
	perr := &apperror.ProviderError{
		Code:       string(serr.Code),
		Message:    serr.Msg,
		StatusCode: serr.HTTPStatusCode,
		Err:        err,
	}
	switch string(serr.Code) {
	case string(stripe.ErrorCodeResourceMissing):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, perr)
	case "resource_already_exists":
		return fmt.Errorf("%s: %w: %w", op, ErrAlreadyExists, perr)
	}
	return fmt.Errorf("%s: %w", op, perr)
}

func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func toCustomer(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name}
}

func toProduct(p *stripe.Product) *Product {
	return &Product{ID: p.ID, Name: p.Name, Active: p.Active, Metadata: p.Metadata}
}

func toPrice(p *stripe.Price) *Price {
	out := &Price{
		ID:         p.ID,
		LookupKey:  p.LookupKey,
		Currency:   strings.ToUpper(string(p.Currency)),
		UnitAmount: p.UnitAmount,
		Active:     p.Active,
		Metadata:   p.Metadata,
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

func toSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         unixPtr(s.CanceledAt),
		TrialStart:         unixPtr(s.TrialStart),
		TrialEnd:           unixPtr(s.TrialEnd),
		Created:            unixTime(s.Created),
		Currency:           strings.ToUpper(string(s.Currency)),
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	// Paused collection leaves Stripe's status at active.
	if s.PauseCollection != nil && s.Status == stripe.SubscriptionStatusActive {
		out.Status = "paused"
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		p := s.Items.Data[0].Price
		out.PriceID = p.ID
		out.UnitAmount = p.UnitAmount
		if out.Currency == "" {
			out.Currency = strings.ToUpper(string(p.Currency))
		}
	}
	if s.LatestInvoice != nil {
		out.LatestInvoice = toInvoice(s.LatestInvoice)
		if out.LatestInvoice.SubscriptionID == "" {
			out.LatestInvoice.SubscriptionID = s.ID
		}
	}
	return out
}

func toInvoice(in *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:            in.ID,
		CustomerEmail: in.CustomerEmail,
		Status:        string(in.Status),
		AmountDue:     in.AmountDue,
		AmountPaid:    in.AmountPaid,
		Currency:      strings.ToUpper(string(in.Currency)),
		HostedURL:     in.HostedInvoiceURL,
		PDFURL:        in.InvoicePDF,
		Created:       unixTime(in.Created),
	}
	if in.Subscription != nil {
		out.SubscriptionID = in.Subscription.ID
	}
	if pi := in.PaymentIntent; pi != nil {
		out.PaymentIntentID = pi.ID
		out.PaymentIntentStatus = string(pi.Status)
		out.ClientSecret = pi.ClientSecret
	}
	return out
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToUpper(string(s.Currency)),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out
}

// toEvent decodes the payload of the event types we handle. Other types come
// back with only ID and Type set.
func toEvent(e stripe.Event) (*Event, error) {
	out := &Event{ID: e.ID, Type: string(e.Type)}
	if e.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var s stripe.Subscription
		if err := json.Unmarshal(e.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", out.Type, err)
		}
		out.Subscription = toSubscription(&s)
	case strings.HasPrefix(out.Type, "invoice."):
		var in stripe.Invoice
		if err := json.Unmarshal(e.Data.Raw, &in); err != nil {
			return nil, fmt.Errorf("decode %s: %w", out.Type, err)
		}
		out.Invoice = toInvoice(&in)
	case strings.HasPrefix(out.Type, "checkout.session."):
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(e.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", out.Type, err)
		}
		out.CheckoutSession = toCheckoutSession(&cs)
	}
	return out, nil
}
