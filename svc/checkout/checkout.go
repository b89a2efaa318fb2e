// Package checkout starts subscription checkouts and customer portal
// sessions with the billing provider.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/svc/auth"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type Config struct {
	BaseURL            string `env:"APP_BASE_URL" envDefault:"https://pro.unbienimmo.com"`
	PriceEssentiel     string `env:"STRIPE_PRICE_ID_ESSENTIEL"`
	PriceProfessionnel string `env:"STRIPE_PRICE_ID_PRO"`
	PriceExpert        string `env:"STRIPE_PRICE_ID_EXPERT"`
}

// PriceIDs maps plan ids to provider price ids. Empty values are kept so a
// missing mapping surfaces at checkout time.
func (c Config) PriceIDs() map[string]string {
	return map[string]string{
		"essentiel":     c.PriceEssentiel,
		"professionnel": c.PriceProfessionnel,
		"expert":        c.PriceExpert,
	}
}

// TenantEnsurer is satisfied by *onboarding.Service.
type TenantEnsurer interface {
	EnsureTenant(ctx context.Context, id auth.Identity) (*onboarding.Tenant, error)
}

type CustomerStore interface {
	GetTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*onboarding.Tenant, error)
	// SetPaymentCustomer stores customerID unless one is already set and
	// returns the value now on the tenant.
	SetPaymentCustomer(ctx context.Context, tenantID uuid.UUID, customerID string) (string, error)
}

type Session struct {
	ID  string `json:"-"`
	URL string `json:"url"`
}

type Initiator struct {
	tenants   TenantEnsurer
	customers CustomerStore
	provider  billing.Provider
	catalog   *Catalog
	cfg       Config
	log       *slog.Logger
}

func NewInitiator(tenants TenantEnsurer, customers CustomerStore, provider billing.Provider, catalog *Catalog, cfg Config, log *slog.Logger) *Initiator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Initiator{
		tenants:   tenants,
		customers: customers,
		provider:  provider,
		catalog:   catalog,
		cfg:       cfg,
		log:       log.With(logger.Component("checkout"), logger.Provider(provider.Name())),
	}
}

func (i *Initiator) Catalog() *Catalog { return i.catalog }

// Start opens a subscription checkout for planID. The plan is validated
// before anything is written or sent to the provider.
func (i *Initiator) Start(ctx context.Context, id auth.Identity, planID string) (*Session, error) {
	planID = strings.TrimSpace(planID)
	priceID, err := i.priceFor(planID)
	if err != nil {
		return nil, err
	}

	tenant, err := i.tenants.EnsureTenant(ctx, id)
	if err != nil {
		i.log.ErrorContext(ctx, "failed to ensure tenant", logger.UserID(id.UserID), logger.Error(err))
		return nil, err
	}

	customerID, err := i.ensureCustomer(ctx, id, tenant)
	if err != nil {
		return nil, err
	}

	meta := billing.Metadata{UserID: id.UserID.String(), TenantID: tenant.ID.String(), PlanID: planID}
	sess, err := i.provider.CreateCheckout(ctx, billing.CheckoutRequest{
		PriceID:    priceID,
		CustomerID: customerID,
		Email:      tenant.Email,
		SuccessURL: i.cfg.BaseURL + onboarding.PathSuccess + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  i.cfg.BaseURL + onboarding.PathOnboarding + "/plan",
		Metadata:   meta,
	})
	if err != nil {
		i.log.ErrorContext(ctx, "failed to create checkout session",
			logger.UserID(id.UserID), logger.TenantID(tenant.ID), logger.Plan(planID), logger.Error(err))
		return nil, errors.Join(ErrCheckoutFailed, err)
	}

	i.log.InfoContext(ctx, "checkout session created",
		logger.UserID(id.UserID), logger.TenantID(tenant.ID), logger.Plan(planID), slog.String("session_id", sess.ID))
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (i *Initiator) priceFor(planID string) (string, error) {
	if _, ok := i.catalog.Lookup(planID); !ok {
		return "", ErrUnknownPlan
	}
	price := i.cfg.PriceIDs()[planID]
	if price == "" {
		return "", ErrUnknownPlan
	}
	return price, nil
}

func (i *Initiator) ensureCustomer(ctx context.Context, id auth.Identity, tenant *onboarding.Tenant) (string, error) {
	if tenant.PaymentCustomerID != "" {
		return tenant.PaymentCustomerID, nil
	}

	name := tenant.LegalName
	if name == "" {
		name = tenant.Name
	}
	customerID, err := i.provider.CreateCustomer(ctx, billing.CustomerRequest{
		Name:  name,
		Email: tenant.Email,
		Address: billing.Address{
			Line1:      tenant.StreetAddress,
			City:       tenant.City,
			PostalCode: tenant.ZipCode,
			Country:    "FR",
		},
		Metadata: billing.Metadata{UserID: id.UserID.String(), TenantID: tenant.ID.String()},
	})
	if err != nil {
		i.log.ErrorContext(ctx, "failed to create billing customer",
			logger.UserID(id.UserID), logger.TenantID(tenant.ID), logger.Error(err))
		return "", errors.Join(ErrCheckoutFailed, err)
	}

	stored, err := i.customers.SetPaymentCustomer(ctx, tenant.ID, customerID)
	if err != nil {
		i.log.ErrorContext(ctx, "failed to store billing customer",
			logger.TenantID(tenant.ID), slog.String("customer_id", customerID), logger.Error(err))
		return "", err
	}
	if stored != customerID {
		i.log.WarnContext(ctx, "concurrent checkout already stored a customer",
			logger.TenantID(tenant.ID), slog.String("customer_id", stored), slog.String("orphan_customer_id", customerID))
	}
	return stored, nil
}

// PortalURL returns a customer portal link for the tenant owned by id.
func (i *Initiator) PortalURL(ctx context.Context, id auth.Identity) (string, error) {
	tenant, err := i.customers.GetTenantByOwner(ctx, id.UserID)
	if errors.Is(err, onboarding.ErrTenantNotFound) {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", err
	}
	if tenant.PaymentCustomerID == "" {
		return "", ErrNoCustomer
	}

	url, err := i.provider.CreatePortalLink(ctx, tenant.PaymentCustomerID, i.cfg.BaseURL+onboarding.PathDashboard)
	if err != nil {
		i.log.ErrorContext(ctx, "failed to create portal session", logger.TenantID(tenant.ID), logger.Error(err))
		return "", errors.Join(ErrPortalFailed, err)
	}
	return url, nil
}
