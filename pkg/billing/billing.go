// Package billing talks to the payment provider: customers, hosted checkout,
// customer portal links and signed webhooks normalised into Event values.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the provider-independent meaning of a webhook event.
type Kind string

const (
	KindCheckoutCompleted     Kind = "checkout_completed"
	KindInvoicePaid           Kind = "invoice_paid"
	KindInvoicePaymentFailed  Kind = "invoice_payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindOther                 Kind = "other"
)

// Metadata is the correlation data attached to checkout sessions and
// subscriptions.
type Metadata struct {
	UserID   string
	TenantID string
	PlanID   string
}

// Map renders metadata in the wire form sent to providers.
func (m Metadata) Map() map[string]string {
	out := make(map[string]string, 3)
	if m.UserID != "" {
		out["user_id"] = m.UserID
	}
	if m.TenantID != "" {
		out["tenant_id"] = m.TenantID
	}
	if m.PlanID != "" {
		out["plan_id"] = m.PlanID
	}
	return out
}

// MetadataFrom reads correlation keys, accepting the camelCase keys used by
// sessions created before tenant ids were attached.
func MetadataFrom(m map[string]string) Metadata {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(m[k]); v != "" {
				return v
			}
		}
		return ""
	}
	return Metadata{
		UserID:   pick("user_id", "userId"),
		TenantID: pick("tenant_id", "tenantId"),
		PlanID:   pick("plan_id", "packId"),
	}
}

// Event is a verified, normalised webhook delivery.
type Event struct {
	ID               string
	Provider         string
	Kind             Kind
	ProviderType     string
	OccurredAt       time.Time
	CustomerID       string
	SubscriptionID   string
	CustomerName     string
	PaymentConfirmed bool
	Metadata         Metadata
}

type Address struct {
	Line1      string
	City       string
	PostalCode string
	Country    string
}

type CustomerRequest struct {
	Name     string
	Email    string
	Address  Address
	Metadata Metadata
}

type CheckoutRequest struct {
	PriceID    string
	CustomerID string
	Email      string
	SuccessURL string
	CancelURL  string
	Metadata   Metadata
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is implemented by the Stripe and Paddle adapters.
type Provider interface {
	Name() string
	// SignatureHeader is the request header carrying the webhook signature.
	SignatureHeader() string
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreatePortalLink(ctx context.Context, customerID, returnURL string) (string, error)
	// ParseWebhook verifies signature over payload before decoding anything.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
}

var (
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrInvalidPayload   = errors.New("billing: invalid webhook payload")
	ErrInvalidConfig    = errors.New("billing: invalid provider configuration")
	ErrProvider         = errors.New("billing: provider request failed")
	ErrMissingPrice     = errors.New("billing: price id is required")
	ErrMissingCustomer  = errors.New("billing: customer id is required")
	ErrNoCheckoutURL    = errors.New("billing: provider returned no checkout url")
)

// PayloadError reports a delivery whose signature verified but whose body
// could not be decoded. Redelivery cannot fix it.
type PayloadError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("billing: undecodable %s event %q: %v", e.EventType, e.EventID, e.Err)
}

func (e *PayloadError) Is(target error) bool { return target == ErrInvalidPayload }
func (e *PayloadError) Unwrap() error        { return e.Err }

type Config struct {
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`
	Stripe   StripeConfig
	Paddle   PaddleConfig
}

// New builds the configured provider.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "stripe":
		return NewStripe(cfg.Stripe)
	case "paddle":
		return NewPaddle(cfg.Paddle)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
