package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

type Paddle struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

func NewPaddle(cfg PaddleConfig) (*Paddle, error) {
	if cfg.APIKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: PADDLE_API_KEY and PADDLE_WEBHOOK_SECRET are required", ErrInvalidConfig)
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("%w: unknown paddle environment %q", ErrInvalidConfig, cfg.Environment)
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	return &Paddle{client: client, verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

func (p *Paddle) Name() string            { return "paddle" }
func (p *Paddle) SignatureHeader() string { return "Paddle-Signature" }

func (p *Paddle) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	creq := &paddle.CreateCustomerRequest{
		Email:      req.Email,
		CustomData: customData(req.Metadata),
	}
	if req.Name != "" {
		creq.Name = paddle.PtrTo(req.Name)
	}
	c, err := p.client.CustomersClient.CreateCustomer(ctx, creq)
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}
	return c.ID, nil
}

func (p *Paddle) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPrice
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomer
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})
	treq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: customData(req.Metadata),
	}
	if req.SuccessURL != "" {
		treq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, treq)
	if err != nil {
		return nil, errors.Join(ErrProvider, err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return &CheckoutSession{ID: tx.ID, URL: *tx.Checkout.URL}, nil
}

// CreatePortalLink ignores returnURL: Paddle portal sessions have no return target.
func (p *Paddle) CreatePortalLink(ctx context.Context, customerID, _ string) (string, error) {
	if customerID == "" {
		return "", ErrMissingCustomer
	}
	sess, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return "", errors.Join(ErrProvider, err)
	}
	if sess.URLs.General.Overview == "" {
		return "", fmt.Errorf("%w: no portal url returned", ErrProvider)
	}
	return sess.URLs.General.Overview, nil
}

func (p *Paddle) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	req.Header.Set(p.SignatureHeader(), signature)

	ok, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !ok {
		return nil, ErrInvalidSignature
	}
	return normalizePaddleEvent(payload)
}

type paddleEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		ID             string         `json:"id"`
		Status         string         `json:"status"`
		Origin         string         `json:"origin"`
		CustomerID     string         `json:"customer_id"`
		SubscriptionID string         `json:"subscription_id"`
		CustomData     map[string]any `json:"custom_data"`
	} `json:"data"`
}

func normalizePaddleEvent(payload []byte) (*Event, error) {
	var pe paddleEvent
	if err := json.Unmarshal(payload, &pe); err != nil {
		return nil, &PayloadError{EventID: pe.EventID, EventType: pe.EventType, Err: err}
	}
	if pe.EventID == "" || pe.EventType == "" {
		return nil, &PayloadError{EventID: pe.EventID, EventType: pe.EventType, Err: errors.New("missing event id or type")}
	}
	if pe.OccurredAt.IsZero() {
		pe.OccurredAt = time.Now()
	}

	meta := make(map[string]string, len(pe.Data.CustomData))
	for k, v := range pe.Data.CustomData {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}

	out := &Event{
		ID:             pe.EventID,
		Provider:       "paddle",
		ProviderType:   pe.EventType,
		Kind:           KindOther,
		OccurredAt:     pe.OccurredAt.UTC(),
		CustomerID:     pe.Data.CustomerID,
		SubscriptionID: pe.Data.SubscriptionID,
		Metadata:       MetadataFrom(meta),
	}

	switch pe.EventType {
	case "transaction.completed", "transaction.paid":
		out.PaymentConfirmed = true
		out.Kind = KindInvoicePaid
		if pe.Data.Origin != "subscription_recurring" && out.Metadata.PlanID != "" {
			out.Kind = KindCheckoutCompleted
		}
	case "transaction.payment_failed", "subscription.past_due":
		out.Kind = KindInvoicePaymentFailed
	case "subscription.canceled":
		out.Kind = KindSubscriptionCancelled
		out.SubscriptionID = pe.Data.ID
	}
	return out, nil
}

func customData(m Metadata) paddle.CustomData {
	cd := paddle.CustomData{}
	for k, v := range m.Map() {
		cd[k] = v
	}
	return cd
}
