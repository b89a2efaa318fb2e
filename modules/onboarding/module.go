// Package onboarding mounts the onboarding pages and the checkout API.
package onboarding

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/svc/auth"
	"github.com/dmitrymomot/prokit/svc/checkout"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type Config struct {
	BaseURL        string `env:"APP_BASE_URL" envDefault:"https://pro.unbienimmo.com"`
	MaxUploadBytes int64  `env:"ONBOARDING_MAX_FORM_BYTES" envDefault:"12582912"`
	QRCodeSize     int    `env:"ONBOARDING_QR_SIZE" envDefault:"256"`
}

// Flow is satisfied by *onboarding.Service.
type Flow interface {
	LoadState(ctx context.Context, id auth.Identity) (*onboarding.State, error)
	ChooseRole(ctx context.Context, id auth.Identity, role string) (string, error)
	SaveProfile(ctx context.Context, id auth.Identity, in onboarding.ProfileInput) (string, error)
	SaveAgency(ctx context.Context, id auth.Identity, in onboarding.AgencyInput) (string, error)
	SaveShowcase(ctx context.Context, id auth.Identity, in onboarding.ShowcaseInput) (string, error)
	EnsureTenant(ctx context.Context, id auth.Identity) (*onboarding.Tenant, error)
	JoinAgency(ctx context.Context, id auth.Identity, code string) (string, error)
	// RequiresVAT reports the VAT policy SaveAgency validates against.
	RequiresVAT() bool
}

// Checkout is satisfied by *checkout.Initiator.
type Checkout interface {
	Start(ctx context.Context, id auth.Identity, planID string) (*checkout.Session, error)
	PortalURL(ctx context.Context, id auth.Identity) (string, error)
	Catalog() *checkout.Catalog
}

type Module struct {
	flow         Flow
	checkout     Checkout
	profiles     onboarding.ProfileReader
	policy       onboarding.Policy
	views        *Views
	cfg          Config
	log          *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

type Option func(*Module)

// WithViews replaces the built-in views.
func WithViews(v *Views) Option {
	return func(m *Module) {
		if v != nil {
			m.views = v.withDefaults()
		}
	}
}

func WithPolicy(p onboarding.Policy) Option {
	return func(m *Module) { m.policy = p }
}

func New(flow Flow, co Checkout, profiles onboarding.ProfileReader, cfg Config, log *slog.Logger, opts ...Option) *Module {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	m := &Module{
		flow:     flow,
		checkout: co,
		profiles: profiles,
		policy:   onboarding.DefaultPolicy(),
		views:    DefaultViews(),
		cfg:      cfg,
		log:      log.With(logger.Component("onboarding.http")),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.errorHandler = handler.NewErrorHandler(m.log, handler.ErrorHandlerConfig{
		ErrorPage:  m.views.ErrorPage,
		ErrorToast: m.views.ErrorToast,
	})
	return m
}

// Routes registers the page routes behind the onboarding guard and the
// JSON API behind RequireUser. Identity must already be resolved by
// auth.Middleware.
func (m *Module) Routes(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Use(auth.RequireUser)
		api.Post("/checkout", m.handleCheckout())
		api.Post("/billing/portal", m.handlePortal())
	})

	r.Group(func(pages chi.Router) {
		pages.Use(onboarding.Guard(m.policy, m.profiles, m.log))

		pages.Get(onboarding.PathAccessDenied, m.handleAccessDenied())
		pages.HandleFunc(onboarding.PathChoice, m.handleChoice())
		pages.HandleFunc(onboarding.PathJoinAgency, m.handleJoin())

		pages.Get(onboarding.PathDashboard, m.handleDashboard())
		pages.Get(onboarding.PathDashboard+"/agency/invite.png", m.handleInviteQR())

		pages.Get(onboarding.PathOnboarding, m.handleOnboardingIndex())
		pages.HandleFunc(onboarding.PathOnboarding+"/profile", m.handleProfile())
		pages.HandleFunc(onboarding.PathOnboarding+"/agency", m.handleAgency())
		pages.HandleFunc(onboarding.PathOnboarding+"/showcase", m.handleShowcase())
		pages.Get(onboarding.PathOnboarding+"/plan", m.handlePlan())
		pages.Get(onboarding.PathSuccess, m.handleSuccess())
	})
}

// Handler returns a standalone router with every route mounted.
func (m *Module) Handler() http.Handler {
	r := chi.NewRouter()
	m.Routes(r)
	return r
}

func identity(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, handler.ErrUnauthorized
	}
	return id, nil
}
