package checkout_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/svc/auth"
	"github.com/dmitrymomot/prokit/svc/checkout"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type mockProvider struct{ mock.Mock }

func (m *mockProvider) Name() string            { return "mock" }
func (m *mockProvider) SignatureHeader() string { return "X-Mock-Signature" }

func (m *mockProvider) CreateCustomer(ctx context.Context, req billing.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*billing.CheckoutSession)
	return s, args.Error(1)
}

func (m *mockProvider) CreatePortalLink(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	e, _ := args.Get(0).(*billing.Event)
	return e, args.Error(1)
}

// tenants implements both TenantEnsurer and CustomerStore.
type tenants struct {
	byOwner   map[uuid.UUID]*onboarding.Tenant
	ensureErr error
	ensured   int
}

func (f *tenants) EnsureTenant(_ context.Context, id auth.Identity) (*onboarding.Tenant, error) {
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	f.ensured++
	if t, ok := f.byOwner[id.UserID]; ok {
		return t, nil
	}
	email := id.Email
	if email == "" {
		email = onboarding.PlaceholderEmail(id)
	}
	t := &onboarding.Tenant{ID: uuid.New(), OwnerID: id.UserID, Email: email, Name: "Agence Dupont"}
	f.byOwner[id.UserID] = t
	return t, nil
}

func (f *tenants) GetTenantByOwner(_ context.Context, ownerID uuid.UUID) (*onboarding.Tenant, error) {
	if t, ok := f.byOwner[ownerID]; ok {
		return t, nil
	}
	return nil, onboarding.ErrTenantNotFound
}

func (f *tenants) SetPaymentCustomer(_ context.Context, tenantID uuid.UUID, customerID string) (string, error) {
	for _, t := range f.byOwner {
		if t.ID == tenantID {
			if t.PaymentCustomerID == "" {
				t.PaymentCustomerID = customerID
			}
			return t.PaymentCustomerID, nil
		}
	}
	return "", onboarding.ErrTenantNotFound
}

var cfg = checkout.Config{
	BaseURL:            "https://pro.test/",
	PriceEssentiel:     "price_ess",
	PriceProfessionnel: "price_pro",
}

func setup() (*checkout.Initiator, *tenants, *mockProvider) {
	store := &tenants{byOwner: map[uuid.UUID]*onboarding.Tenant{}}
	provider := &mockProvider{}
	return checkout.NewInitiator(store, store, provider, nil, cfg, nil), store, provider
}

func TestStart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates customer and session", func(t *testing.T) {
		t.Parallel()
		initiator, store, provider := setup()
		id := auth.Identity{UserID: uuid.New(), Email: "owner@agence.fr"}

		provider.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(r billing.CustomerRequest) bool {
			return r.Email == "owner@agence.fr" && r.Name == "Agence Dupont"
		})).Return("cus_1", nil).Once()
		provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r billing.CheckoutRequest) bool {
			return r.PriceID == "price_pro" &&
				r.CustomerID == "cus_1" &&
				r.Metadata.UserID == id.UserID.String() &&
				r.Metadata.TenantID != "" &&
				r.Metadata.PlanID == "professionnel" &&
				r.SuccessURL == "https://pro.test/dashboard/onboarding/success?session_id={CHECKOUT_SESSION_ID}" &&
				r.CancelURL == "https://pro.test/dashboard/onboarding/plan"
		})).Return(&billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil).Once()

		sess, err := initiator.Start(ctx, id, " professionnel ")
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.test/cs_1", sess.URL)
		assert.Equal(t, "cus_1", store.byOwner[id.UserID].PaymentCustomerID)
		provider.AssertExpectations(t)
	})

	t.Run("reuses stored customer", func(t *testing.T) {
		t.Parallel()
		initiator, store, provider := setup()
		id := auth.Identity{UserID: uuid.New()}
		store.byOwner[id.UserID] = &onboarding.Tenant{ID: uuid.New(), OwnerID: id.UserID, PaymentCustomerID: "cus_existing"}

		provider.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r billing.CheckoutRequest) bool {
			return r.CustomerID == "cus_existing"
		})).Return(&billing.CheckoutSession{URL: "https://checkout.test/x"}, nil).Once()

		_, err := initiator.Start(ctx, id, "essentiel")
		require.NoError(t, err)
		provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("unknown plan creates nothing", func(t *testing.T) {
		t.Parallel()
		for _, plan := range []string{"platinum", "", "expert"} {
			initiator, store, provider := setup()
			_, err := initiator.Start(ctx, auth.Identity{UserID: uuid.New()}, plan)
			require.ErrorIs(t, err, checkout.ErrUnknownPlan, "plan %q", plan)
			assert.Zero(t, store.ensured)
			provider.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		initiator, _, provider := setup()
		provider.On("CreateCustomer", mock.Anything, mock.Anything).Return("", errors.New("card_declined")).Once()

		_, err := initiator.Start(ctx, auth.Identity{UserID: uuid.New()}, "essentiel")
		require.ErrorIs(t, err, checkout.ErrCheckoutFailed)
		assert.Contains(t, err.Error(), "card_declined")
	})

	t.Run("tenant failure", func(t *testing.T) {
		t.Parallel()
		initiator, store, _ := setup()
		store.ensureErr = errors.New("db down")

		_, err := initiator.Start(ctx, auth.Identity{UserID: uuid.New()}, "essentiel")
		require.Error(t, err)
		assert.NotErrorIs(t, err, checkout.ErrUnknownPlan)
	})
}

func TestPortalURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	initiator, store, provider := setup()
	id := auth.Identity{UserID: uuid.New()}

	_, err := initiator.PortalURL(ctx, id)
	require.ErrorIs(t, err, checkout.ErrNoCustomer)

	store.byOwner[id.UserID] = &onboarding.Tenant{ID: uuid.New(), OwnerID: id.UserID}
	_, err = initiator.PortalURL(ctx, id)
	require.ErrorIs(t, err, checkout.ErrNoCustomer)

	store.byOwner[id.UserID].PaymentCustomerID = "cus_1"
	provider.On("CreatePortalLink", mock.Anything, "cus_1", "https://pro.test/dashboard").Return("https://portal.test/1", nil).Once()
	url, err := initiator.PortalURL(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/1", url)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := checkout.DefaultCatalog()
	require.Len(t, c.Plans, 3)

	tests := []struct {
		id       string
		price    int64
		listings int
		vat      int64
	}{
		{"essentiel", 4900, 10, 980},
		{"professionnel", 9900, 25, 1980},
		{"expert", 19900, 50, 3980},
	}
	for _, tt := range tests {
		p, ok := c.Lookup(tt.id)
		require.True(t, ok, tt.id)
		assert.Equal(t, tt.price, p.MonthlyPriceCents)
		assert.Equal(t, tt.listings, p.Listings)
		assert.Equal(t, tt.vat, c.VATCents(p))
		assert.Equal(t, tt.price+tt.vat, c.TotalCents(p))
	}

	formatted := c.Format(4900)
	assert.True(t, strings.Contains(formatted, "49"), formatted)
	assert.True(t, strings.Contains(formatted, "€"), formatted)
	assert.Equal(t, "20 %", c.VATPercent())

	_, err := checkout.ParseCatalog([]byte("currency: EUR\nplans: []\n"))
	require.Error(t, err)
	_, err = checkout.ParseCatalog([]byte("currency: XXXX\nplans:\n  - id: a\n"))
	require.Error(t, err)
	_, err = checkout.ParseCatalog([]byte("currency: EUR\nplans:\n  - id: a\n  - id: a\n"))
	require.Error(t, err)
}
