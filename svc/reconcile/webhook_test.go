package reconcile_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/svc/reconcile"
)

type mockProvider struct{ mock.Mock }

func (m *mockProvider) Name() string            { return "stripe" }
func (m *mockProvider) SignatureHeader() string { return "Stripe-Signature" }

func (m *mockProvider) CreateCustomer(context.Context, billing.CustomerRequest) (string, error) {
	return "", nil
}

func (m *mockProvider) CreateCheckout(context.Context, billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	return nil, nil
}

func (m *mockProvider) CreatePortalLink(context.Context, string, string) (string, error) {
	return "", nil
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	e, _ := args.Get(0).(*billing.Event)
	return e, args.Error(1)
}

func TestWebhookHandler(t *testing.T) {
	t.Parallel()

	post := func(h http.Handler, body, sig string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", strings.NewReader(body))
		if sig != "" {
			r.Header.Set("Stripe-Signature", sig)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("processed", func(t *testing.T) {
		t.Parallel()
		store := newMemLedger()
		tenant := store.addTenant(reconcile.TenantState{})
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, []byte(`{"id":"evt_1"}`), "t=1,v1=ok").
			Return(checkoutEvent("evt_1", tenant, t0), nil)
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil), nil)

		rec := post(h, `{"id":"evt_1"}`, "t=1,v1=ok")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"status":"processed"}`, rec.Body.String())

		rec = post(h, `{"id":"evt_1"}`, "t=1,v1=ok")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"status":"duplicate"}`, rec.Body.String())
	})

	t.Run("bad signature mutates nothing", func(t *testing.T) {
		t.Parallel()
		store := newMemLedger()
		tenant := store.addTenant(reconcile.TenantState{})
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil, billing.ErrInvalidSignature)
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil), nil)

		rec := post(h, `{"id":"evt_1"}`, "t=1,v1=forged")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, store.events)
		assert.Equal(t, "trialing", store.tenant(tenant.ID).Status)
	})

	t.Run("undecodable verified payload is acknowledged", func(t *testing.T) {
		t.Parallel()
		store := newMemLedger()
		tenant := store.addTenant(reconcile.TenantState{CustomerID: "cus_1"})
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &billing.PayloadError{EventID: "evt_bad", EventType: "invoice.paid", Err: errors.New("json: cannot unmarshal object")})
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil), nil)

		rec := post(h, `{"id":"evt_bad"}`, "t=1,v1=ok")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"status":"ignored"}`, rec.Body.String())
		assert.Empty(t, store.events)
		assert.Equal(t, "trialing", store.tenant(tenant.ID).Status)
	})

	t.Run("signed stripe event with a malformed object", func(t *testing.T) {
		t.Parallel()
		const secret = "whsec_reconcile"
		provider, err := billing.NewStripe(billing.StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})
		require.NoError(t, err)
		store := newMemLedger()
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil), nil)

		payload := `{"id":"evt_obj","object":"event","type":"invoice.paid","created":1700000000,
			"data":{"object":{"id":"in_1","customer":{"id":"cus_1"}}}}`
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(payload),
			Secret:    secret,
			Timestamp: time.Now(),
		})

		rec := post(h, payload, signed.Header)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"status":"ignored"}`, rec.Body.String())
		assert.Empty(t, store.events)

		rec = post(h, payload, "t=1,v1=forged")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ignored event", func(t *testing.T) {
		t.Parallel()
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
			Return(&billing.Event{ID: "evt_x", Provider: "stripe", Kind: billing.KindOther, OccurredAt: t0}, nil)
		h := reconcile.WebhookHandler(provider, reconcile.New(newMemLedger(), nil), nil)

		rec := post(h, `{}`, "sig")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"status":"ignored"}`, rec.Body.String())
	})

	t.Run("in flight", func(t *testing.T) {
		t.Parallel()
		store := newMemLedger()
		tenant := store.addTenant(reconcile.TenantState{})
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).Return(checkoutEvent("evt_1", tenant, t0), nil)
		locker := &fakeLocker{held: map[string]bool{"stripe:evt_1": true}}
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil, reconcile.WithLocker(locker)), nil)

		rec := post(h, `{}`, "sig")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("storage failure asks for a retry", func(t *testing.T) {
		t.Parallel()
		store := newMemLedger()
		tenant := store.addTenant(reconcile.TenantState{})
		store.failOn = "UpdateTenant"
		provider := &mockProvider{}
		provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).Return(checkoutEvent("evt_1", tenant, t0), nil)
		h := reconcile.WebhookHandler(provider, reconcile.New(store, nil), nil)

		rec := post(h, `{}`, "sig")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("oversized body is rejected before verification", func(t *testing.T) {
		t.Parallel()
		provider := &mockProvider{}
		h := reconcile.WebhookHandler(provider, reconcile.New(newMemLedger(), nil), nil)

		rec := post(h, strings.Repeat("a", reconcile.MaxWebhookBodyBytes+1), "sig")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		provider.AssertNotCalled(t, "ParseWebhook", mock.Anything, mock.Anything, mock.Anything)
	})
}
