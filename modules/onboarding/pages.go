package onboarding

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/binder"
	"github.com/dmitrymomot/prokit/pkg/qrcode"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type choiceRequest struct {
	Role string `form:"role"`
}

type joinRequest struct {
	Code string `form:"code" query:"code"`
}

type successRequest struct {
	SessionID string `query:"session_id"`
}

// formResponse re-renders the form with field messages on validation
// failure and defers every other error to the error handler.
func formResponse(err error, render func(errs map[string]string) templ.Component) handler.Response {
	if details := handler.ValidationDetails(err); details != nil {
		return handler.TemplWithStatus(http.StatusUnprocessableEntity, render(details))
	}
	return handler.Error(err)
}

func isPost(ctx handler.Context) bool {
	return ctx.Request().Method == http.MethodPost
}

// currentStep returns the step loaded by the guard for this request.
func (m *Module) currentStep(ctx handler.Context) int {
	if p, ok := onboarding.ProfileFromContext(ctx); ok {
		return p.Step
	}
	return onboarding.StepChooseRole
}

// ahead reports whether the page for step lies beyond the user's progress.
// Completed steps stay reachable for edits.
func (m *Module) ahead(ctx handler.Context, step int) (handler.Response, bool) {
	current := m.currentStep(ctx)
	if step > current {
		return handler.Redirect(onboarding.PathFor(current)), true
	}
	return nil, false
}

func (m *Module) tracker(ctx handler.Context) []onboarding.TrackerItem {
	return onboarding.Tracker(m.currentStep(ctx), ctx.Request().URL.Path)
}

func (m *Module) inviteURL(code string) string {
	return m.cfg.BaseURL + onboarding.PathJoinAgency + "?code=" + url.QueryEscape(code)
}

func (m *Module) handleChoice() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req choiceRequest) handler.Response {
		if !isPost(ctx) {
			return handler.Templ(m.views.ChoicePage(ChoicePageParams{}))
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		next, err := m.flow.ChooseRole(ctx, id, req.Role)
		if err != nil {
			return formResponse(err, func(errs map[string]string) templ.Component {
				return m.views.ChoicePage(ChoicePageParams{Errors: errs})
			})
		}
		return handler.Redirect(next)
	},
		handler.WithBinders[handler.Context, choiceRequest](binder.Form(0)),
		handler.WithErrorHandler[handler.Context, choiceRequest](m.errorHandler),
	)
}

func (m *Module) handleJoin() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req joinRequest) handler.Response {
		render := func(errs map[string]string) templ.Component {
			return m.views.JoinPage(JoinPageParams{Code: req.Code, Errors: errs})
		}
		if !isPost(ctx) {
			return handler.Templ(render(nil))
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}

		next, err := m.flow.JoinAgency(ctx, id, req.Code)
		switch {
		case errors.Is(err, onboarding.ErrInviteNotFound):
			return handler.TemplWithStatus(http.StatusUnprocessableEntity,
				render(map[string]string{"code": "Code d'invitation invalide"}))
		case errors.Is(err, onboarding.ErrAgencyInactive):
			return handler.TemplWithStatus(http.StatusUnprocessableEntity,
				render(map[string]string{"code": "Cette agence n'a pas encore d'abonnement actif"}))
		case err != nil:
			return formResponse(err, render)
		}
		return handler.Redirect(next)
	},
		handler.WithBinders[handler.Context, joinRequest](binder.Query(), binder.Form(0)),
		handler.WithErrorHandler[handler.Context, joinRequest](m.errorHandler),
	)
}

func (m *Module) handleOnboardingIndex() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		return handler.Redirect(onboarding.PathFor(m.currentStep(ctx)))
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}

func (m *Module) handleProfile() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req onboarding.ProfileInput) handler.Response {
		if resp, ok := m.ahead(ctx, onboarding.StepProfile); ok {
			return resp
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		render := func(form onboarding.ProfileInput, errs map[string]string) templ.Component {
			return m.views.ProfilePage(ProfilePageParams{Tracker: m.tracker(ctx), Form: form, Errors: errs})
		}

		if !isPost(ctx) {
			state, err := m.flow.LoadState(ctx, id)
			if err != nil {
				return handler.Error(err)
			}
			p := state.Profile
			return handler.Templ(render(onboarding.ProfileInput{FirstName: p.FirstName, LastName: p.LastName, Phone: p.Phone}, nil))
		}

		next, err := m.flow.SaveProfile(ctx, id, req)
		if err != nil {
			return formResponse(err, func(errs map[string]string) templ.Component { return render(req, errs) })
		}
		return handler.Redirect(next)
	},
		handler.WithBinders[handler.Context, onboarding.ProfileInput](binder.Form(0)),
		handler.WithErrorHandler[handler.Context, onboarding.ProfileInput](m.errorHandler),
	)
}

func (m *Module) handleAgency() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req onboarding.AgencyInput) handler.Response {
		if resp, ok := m.ahead(ctx, onboarding.StepAgency); ok {
			return resp
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		render := func(form onboarding.AgencyInput, errs map[string]string) templ.Component {
			return m.views.AgencyPage(AgencyPageParams{
				Tracker:    m.tracker(ctx),
				Form:       form,
				Types:      onboarding.AgencyTypes,
				RequireVAT: m.flow.RequiresVAT(),
				Errors:     errs,
			})
		}

		if !isPost(ctx) {
			state, err := m.flow.LoadState(ctx, id)
			if err != nil {
				return handler.Error(err)
			}
			var form onboarding.AgencyInput
			if t := state.Tenant; t != nil {
				form = onboarding.AgencyInput{
					Name: t.Name, LegalName: t.LegalName, Type: t.Type, SIRET: t.SIRET, VATNumber: t.VATNumber,
					Email: t.Email, Phone: t.Phone, Website: t.Website,
					StreetAddress: t.StreetAddress, City: t.City, ZipCode: t.ZipCode,
				}
			}
			return handler.Templ(render(form, nil))
		}

		next, err := m.flow.SaveAgency(ctx, id, req)
		if err != nil {
			return formResponse(err, func(errs map[string]string) templ.Component { return render(req, errs) })
		}
		return handler.Redirect(next)
	},
		handler.WithBinders[handler.Context, onboarding.AgencyInput](binder.Form(0)),
		handler.WithErrorHandler[handler.Context, onboarding.AgencyInput](m.errorHandler),
	)
}

func (m *Module) handleShowcase() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req onboarding.ShowcaseInput) handler.Response {
		if resp, ok := m.ahead(ctx, onboarding.StepShowcase); ok {
			return resp
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		state, err := m.flow.LoadState(ctx, id)
		if err != nil {
			return handler.Error(err)
		}
		render := func(description string, errs map[string]string) templ.Component {
			params := ShowcasePageParams{Tracker: m.tracker(ctx), Description: description, Errors: errs}
			if t := state.Tenant; t != nil {
				params.LogoURL, params.BannerURL = t.LogoURL, t.BannerURL
			}
			return m.views.ShowcasePage(params)
		}

		if !isPost(ctx) {
			var description string
			if state.Tenant != nil {
				description = state.Tenant.Description
			}
			return handler.Templ(render(description, nil))
		}

		next, err := m.flow.SaveShowcase(ctx, id, req)
		if err != nil {
			return formResponse(err, func(errs map[string]string) templ.Component { return render(req.Description, errs) })
		}
		return handler.Redirect(next)
	},
		handler.WithBinders[handler.Context, onboarding.ShowcaseInput](binder.Form(m.cfg.MaxUploadBytes)),
		handler.WithErrorHandler[handler.Context, onboarding.ShowcaseInput](m.errorHandler),
	)
}

func (m *Module) handlePlan() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		if resp, ok := m.ahead(ctx, onboarding.StepPlan); ok {
			return resp
		}
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		state, err := m.flow.LoadState(ctx, id)
		if err != nil {
			return handler.Error(err)
		}
		params := PlanPageParams{Tracker: m.tracker(ctx), Catalog: m.checkout.Catalog()}
		if state.Tenant != nil {
			params.CurrentPlan = state.Tenant.SubscriptionPlan
		}
		return handler.Templ(m.views.PlanPage(params))
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}

// handleSuccess only displays the session id. Activation is driven by the
// provider webhook, never by this redirect.
func (m *Module) handleSuccess() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, req successRequest) handler.Response {
		return handler.Templ(m.views.SuccessPage(SuccessPageParams{SessionID: req.SessionID}))
	},
		handler.WithBinders[handler.Context, successRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, successRequest](m.errorHandler),
	)
}

func (m *Module) handleDashboard() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		state, err := m.flow.LoadState(ctx, id)
		if err != nil {
			return handler.Error(err)
		}
		params := DashboardPageParams{Profile: state.Profile, Tenant: state.Tenant, IsOwner: state.Tenant != nil}
		if state.Tenant != nil {
			params.InviteURL = m.inviteURL(state.Tenant.InviteCode)
		}
		return handler.Templ(m.views.DashboardPage(params))
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}

func (m *Module) handleInviteQR() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		id, err := identity(ctx)
		if err != nil {
			return handler.Error(err)
		}
		state, err := m.flow.LoadState(ctx, id)
		if err != nil {
			return handler.Error(err)
		}
		if state.Tenant == nil || state.Tenant.InviteCode == "" {
			return handler.Error(handler.ErrNotFound)
		}
		png, err := qrcode.PNG(m.inviteURL(state.Tenant.InviteCode), m.cfg.QRCodeSize)
		if err != nil {
			return handler.Error(err)
		}
		return handler.Blob("image/png", png)
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}

func (m *Module) handleAccessDenied() http.HandlerFunc {
	return handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		return handler.TemplWithStatus(http.StatusForbidden, m.views.AccessDeniedPage())
	}, handler.WithErrorHandler[handler.Context, struct{}](m.errorHandler))
}
