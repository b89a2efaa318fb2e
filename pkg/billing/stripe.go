package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIURL overrides the API endpoint, e.g. for stripe-mock.
	APIURL string `env:"STRIPE_API_URL"`
}

type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required", ErrInvalidConfig)
	}
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
	return &Stripe{api: client.New(cfg.SecretKey, backends), webhookSecret: cfg.WebhookSecret}, nil
}

func (s *Stripe) Name() string            { return "stripe" }
func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

func (s *Stripe) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(req.Email),
		Metadata: req.Metadata.Map(),
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	if req.Address.Line1 != "" || req.Address.City != "" {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(req.Address.Line1),
			City:       stripe.String(req.Address.City),
			PostalCode: stripe.String(req.Address.PostalCode),
			Country:    stripe.String(req.Address.Country),
		}
	}
	params.Context = ctx

	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", wrapStripeError(err)
	}
	return c.ID, nil
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPrice
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomer
	}
	meta := req.Metadata.Map()
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
	}
	if req.Metadata.UserID != "" {
		params.ClientReferenceID = stripe.String(req.Metadata.UserID)
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) CreatePortalLink(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomer
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", wrapStripeError(err)
	}
	return sess.URL, nil
}

func (s *Stripe) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	return normalizeStripeEvent(evt)
}

type stripeCheckoutSession struct {
	ID              string            `json:"id"`
	Customer        string            `json:"customer"`
	Subscription    string            `json:"subscription"`
	PaymentStatus   string            `json:"payment_status"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
}

type stripeSubscriptionDetails struct {
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID                  string                    `json:"id"`
	Customer            string                    `json:"customer"`
	CustomerName        string                    `json:"customer_name"`
	Subscription        string                    `json:"subscription"`
	SubscriptionDetails stripeSubscriptionDetails `json:"subscription_details"`
	Parent              struct {
		SubscriptionDetails stripeSubscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

type stripeSubscription struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

func normalizeStripeEvent(evt stripe.Event) (*Event, error) {
	out := &Event{
		ID:           evt.ID,
		Provider:     "stripe",
		ProviderType: string(evt.Type),
		Kind:         KindOther,
		OccurredAt:   time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Created <= 0 {
		out.OccurredAt = time.Now().UTC()
	}
	invalid := func(err error) error {
		return &PayloadError{EventID: evt.ID, EventType: string(evt.Type), Err: err}
	}
	if evt.Data == nil {
		return out, nil
	}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var sess stripeCheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return nil, invalid(err)
		}
		out.Kind = KindCheckoutCompleted
		out.CustomerID = sess.Customer
		out.SubscriptionID = sess.Subscription
		out.CustomerName = sess.CustomerDetails.Name
		out.PaymentConfirmed = sess.PaymentStatus == "paid" || sess.PaymentStatus == "no_payment_required"
		out.Metadata = MetadataFrom(sess.Metadata)

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return nil, invalid(err)
		}
		out.Kind = KindInvoicePaid
		if evt.Type == "invoice.payment_failed" {
			out.Kind = KindInvoicePaymentFailed
		}
		out.CustomerID = inv.Customer
		out.CustomerName = inv.CustomerName
		details := inv.Parent.SubscriptionDetails
		if details.Subscription == "" && len(details.Metadata) == 0 {
			details = inv.SubscriptionDetails
		}
		out.SubscriptionID = firstNonEmpty(details.Subscription, inv.Subscription)
		out.Metadata = MetadataFrom(details.Metadata)

	case "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, invalid(err)
		}
		out.Kind = KindSubscriptionCancelled
		out.CustomerID = sub.Customer
		out.SubscriptionID = sub.ID
		out.Metadata = MetadataFrom(sub.Metadata)
	}
	return out, nil
}

func wrapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return fmt.Errorf("%w: %s", ErrProvider, se.Msg)
	}
	return errors.Join(ErrProvider, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
