package onboarding

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/binder"
	"github.com/dmitrymomot/prokit/pkg/environment"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/svc/checkout"
)

const maxCheckoutBody = 4 << 10

type checkoutRequest struct {
	PackID string `json:"packId"`
}

type urlResponse struct {
	URL string `json:"url"`
}

// internalError hides provider details in production.
func internalError(ctx handler.Context, err error, public string) handler.Response {
	msg := public
	if !environment.IsProduction(ctx) {
		msg = err.Error()
	}
	return handler.JSONError(handler.ErrInternalServerError, msg)
}

func (m *Module) handleCheckout() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req checkoutRequest) handler.Response {
		id, err := identity(ctx)
		if err != nil {
			return handler.JSONError(err, "Non autorisé")
		}

		sess, err := m.checkout.Start(ctx, id, req.PackID)
		switch {
		case errors.Is(err, checkout.ErrUnknownPlan):
			return handler.JSONError(handler.ErrBadRequest, "Plan invalide")
		case err != nil:
			m.log.ErrorContext(ctx, "checkout request failed", logger.UserID(id.UserID), logger.Plan(req.PackID), logger.Error(err))
			return internalError(ctx, err, "Erreur lors de la création de la session de paiement")
		}
		return handler.JSON(urlResponse{URL: sess.URL})
	},
		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON(maxCheckoutBody)),
		handler.WithErrorHandler[handler.Context, checkoutRequest](m.errorHandler),
	)
}

func (m *Module) handlePortal() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		id, err := identity(ctx)
		if err != nil {
			return handler.JSONError(err, "Non autorisé")
		}

		link, err := m.checkout.PortalURL(ctx, id)
		switch {
		case errors.Is(err, checkout.ErrNoCustomer):
			return handler.JSONError(handler.ErrConflict, "Aucun abonnement à gérer")
		case err != nil:
			m.log.ErrorContext(ctx, "billing portal request failed", logger.UserID(id.UserID), logger.Error(err))
			return internalError(ctx, err, "Erreur lors de l'ouverture du portail de facturation")
		}
		return handler.JSON(urlResponse{URL: link})
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}
