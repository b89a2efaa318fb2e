package onboarding

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/svc/checkout"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

// Views renders every page of the module. Each field may be replaced
// independently; nil fields are filled from DefaultViews.
type Views struct {
	ChoicePage       func(ChoicePageParams) templ.Component
	JoinPage         func(JoinPageParams) templ.Component
	ProfilePage      func(ProfilePageParams) templ.Component
	AgencyPage       func(AgencyPageParams) templ.Component
	ShowcasePage     func(ShowcasePageParams) templ.Component
	PlanPage         func(PlanPageParams) templ.Component
	SuccessPage      func(SuccessPageParams) templ.Component
	DashboardPage    func(DashboardPageParams) templ.Component
	AccessDeniedPage func() templ.Component
	ErrorPage        func(handler.ErrorPageParams) templ.Component
	ErrorToast       func(handler.ErrorToastParams) templ.Component
}

type ChoicePageParams struct {
	Errors map[string]string
}

type JoinPageParams struct {
	Code   string
	Errors map[string]string
}

type ProfilePageParams struct {
	Tracker []onboarding.TrackerItem
	Form    onboarding.ProfileInput
	Errors  map[string]string
}

type AgencyPageParams struct {
	Tracker    []onboarding.TrackerItem
	Form       onboarding.AgencyInput
	Types      []string
	RequireVAT bool
	Errors     map[string]string
}

type ShowcasePageParams struct {
	Tracker     []onboarding.TrackerItem
	Description string
	LogoURL     string
	BannerURL   string
	Errors      map[string]string
}

type PlanPageParams struct {
	Tracker     []onboarding.TrackerItem
	Catalog     *checkout.Catalog
	CurrentPlan string
}

type SuccessPageParams struct {
	SessionID string
}

type DashboardPageParams struct {
	Profile   *onboarding.Profile
	Tenant    *onboarding.Tenant
	InviteURL string
	IsOwner   bool
}

func DefaultViews() *Views {
	return &Views{
		ChoicePage:       choicePage,
		JoinPage:         joinPage,
		ProfilePage:      profilePage,
		AgencyPage:       agencyPage,
		ShowcasePage:     showcasePage,
		PlanPage:         planPage,
		SuccessPage:      successPage,
		DashboardPage:    dashboardPage,
		AccessDeniedPage: accessDeniedPage,
		ErrorPage:        errorPage,
		ErrorToast:       errorToast,
	}
}

// withDefaults fills nil fields of v from DefaultViews.
func (v *Views) withDefaults() *Views {
	d := DefaultViews()
	out := *v
	if out.ChoicePage == nil {
		out.ChoicePage = d.ChoicePage
	}
	if out.JoinPage == nil {
		out.JoinPage = d.JoinPage
	}
	if out.ProfilePage == nil {
		out.ProfilePage = d.ProfilePage
	}
	if out.AgencyPage == nil {
		out.AgencyPage = d.AgencyPage
	}
	if out.ShowcasePage == nil {
		out.ShowcasePage = d.ShowcasePage
	}
	if out.PlanPage == nil {
		out.PlanPage = d.PlanPage
	}
	if out.SuccessPage == nil {
		out.SuccessPage = d.SuccessPage
	}
	if out.DashboardPage == nil {
		out.DashboardPage = d.DashboardPage
	}
	if out.AccessDeniedPage == nil {
		out.AccessDeniedPage = d.AccessDeniedPage
	}
	if out.ErrorPage == nil {
		out.ErrorPage = d.ErrorPage
	}
	if out.ErrorToast == nil {
		out.ErrorToast = d.ErrorToast
	}
	return &out
}

// html writes markup and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) { h.raw(templ.EscapeString(s)) }

// rawf formats with every argument escaped.
func (h *html) rawf(format string, args ...any) {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = templ.EscapeString(fmt.Sprint(a))
	}
	h.raw(fmt.Sprintf(format, escaped...))
}

func page(title string, body func(h *html)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<!doctype html><html lang="fr"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.rawf(`<title>%s · Un Bien Immo Pro</title>`, title)
		h.raw(`<script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.5/bundles/datastar.js"></script>`)
		h.raw(`</head><body><div id="toast-container"></div><main>`)
		body(h)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

func (h *html) tracker(items []onboarding.TrackerItem) {
	if len(items) == 0 {
		return
	}
	h.raw(`<ol class="tracker">`)
	for _, it := range items {
		h.rawf(`<li class="tracker-%s">`, string(it.State))
		if it.Href != "" {
			h.rawf(`<a href="%s">%s</a>`, it.Href, it.Title)
		} else {
			h.text(it.Title)
		}
		h.raw(`</li>`)
	}
	h.raw(`</ol>`)
}

func (h *html) fieldError(errs map[string]string, name string) {
	if msg := errs[name]; msg != "" {
		h.rawf(`<p class="field-error" id="%s-error">%s</p>`, name, msg)
	}
}

func (h *html) input(label, name, kind, value string, errs map[string]string) {
	h.rawf(`<label for="%s">%s</label>`, name, label)
	h.rawf(`<input id="%s" name="%s" type="%s" value="%s">`, name, name, kind, value)
	h.fieldError(errs, name)
}

func (h *html) formStart(action string, multipart bool) {
	if multipart {
		h.rawf(`<form method="post" action="%s" enctype="multipart/form-data">`, action)
		return
	}
	h.rawf(`<form method="post" action="%s">`, action)
}

func choicePage(p ChoicePageParams) templ.Component {
	return page("Votre profil", func(h *html) {
		h.raw(`<h1>Bienvenue sur Un Bien Immo Pro</h1>`)
		h.formStart(onboarding.PathChoice, false)
		h.rawf(`<button name="role" value="%s">Je crée mon agence</button>`, onboarding.RolePatron)
		h.rawf(`<button name="role" value="%s">Je rejoins une agence</button>`, onboarding.RoleJoiner)
		h.fieldError(p.Errors, "role")
		h.raw(`</form>`)
	})
}

func joinPage(p JoinPageParams) templ.Component {
	return page("Rejoindre une agence", func(h *html) {
		h.raw(`<h1>Rejoindre une agence</h1>`)
		h.formStart(onboarding.PathJoinAgency, false)
		h.input("Code d'invitation", "code", "text", p.Code, p.Errors)
		h.raw(`<button type="submit">Rejoindre</button></form>`)
	})
}

func profilePage(p ProfilePageParams) templ.Component {
	return page("Profil", func(h *html) {
		h.tracker(p.Tracker)
		h.raw(`<h1>Votre profil</h1>`)
		h.formStart(onboarding.PathOnboarding+"/profile", false)
		h.input("Prénom", "first_name", "text", p.Form.FirstName, p.Errors)
		h.input("Nom", "last_name", "text", p.Form.LastName, p.Errors)
		h.input("Téléphone", "phone", "tel", p.Form.Phone, p.Errors)
		h.raw(`<button type="submit">Continuer</button></form>`)
	})
}

func agencyPage(p AgencyPageParams) templ.Component {
	return page("Agence", func(h *html) {
		h.tracker(p.Tracker)
		h.raw(`<h1>Votre agence</h1>`)
		h.formStart(onboarding.PathOnboarding+"/agency", false)
		h.input("Nom commercial", "name", "text", p.Form.Name, p.Errors)
		h.input("Raison sociale", "legal_name", "text", p.Form.LegalName, p.Errors)
		h.raw(`<label for="type">Type</label><select id="type" name="type">`)
		for _, t := range p.Types {
			if t == p.Form.Type {
				h.rawf(`<option value="%s" selected>%s</option>`, t, t)
				continue
			}
			h.rawf(`<option value="%s">%s</option>`, t, t)
		}
		h.raw(`</select>`)
		h.fieldError(p.Errors, "type")
		h.input("SIRET", "siret", "text", p.Form.SIRET, p.Errors)
		vatLabel := "N° TVA (facultatif)"
		if p.RequireVAT {
			vatLabel = "N° TVA"
		}
		h.input(vatLabel, "vat_number", "text", p.Form.VATNumber, p.Errors)
		h.input("E-mail", "email", "email", p.Form.Email, p.Errors)
		h.input("Téléphone", "phone", "tel", p.Form.Phone, p.Errors)
		h.input("Site web", "website", "url", p.Form.Website, p.Errors)
		h.input("Adresse", "street_address", "text", p.Form.StreetAddress, p.Errors)
		h.input("Ville", "city", "text", p.Form.City, p.Errors)
		h.input("Code postal", "zip_code", "text", p.Form.ZipCode, p.Errors)
		h.raw(`<button type="submit">Continuer</button></form>`)
	})
}

func showcasePage(p ShowcasePageParams) templ.Component {
	return page("Vitrine", func(h *html) {
		h.tracker(p.Tracker)
		h.raw(`<h1>Votre vitrine</h1>`)
		h.formStart(onboarding.PathOnboarding+"/showcase", true)
		h.raw(`<label for="description">Présentation</label>`)
		h.rawf(`<textarea id="description" name="description">%s</textarea>`, p.Description)
		h.fieldError(p.Errors, "description")
		if p.LogoURL != "" {
			h.rawf(`<img src="%s" alt="Logo actuel" class="preview">`, p.LogoURL)
		}
		h.raw(`<label for="logo">Logo</label><input id="logo" name="logo" type="file" accept="image/*">`)
		h.fieldError(p.Errors, "logo")
		if p.BannerURL != "" {
			h.rawf(`<img src="%s" alt="Bannière actuelle" class="preview">`, p.BannerURL)
		}
		h.raw(`<label for="banner">Bannière</label><input id="banner" name="banner" type="file" accept="image/*">`)
		h.fieldError(p.Errors, "banner")
		h.raw(`<button type="submit">Continuer</button></form>`)
	})
}

func planPage(p PlanPageParams) templ.Component {
	return page("Abonnement", func(h *html) {
		h.tracker(p.Tracker)
		h.raw(`<h1>Choisissez votre abonnement</h1><div class="plans" data-signals="{error: ''}">`)
		c := p.Catalog
		for _, plan := range c.Plans {
			class := "plan"
			if plan.Highlight {
				class += " plan-highlight"
			}
			h.rawf(`<section class="%s" id="plan-%s"><h2>%s</h2>`, class, plan.ID, plan.Name)
			h.rawf(`<p class="price">%s HT / mois</p>`, c.Format(plan.MonthlyPriceCents))
			h.rawf(`<p class="vat">TVA %s : %s, soit %s TTC</p>`, c.VATPercent(), c.Format(c.VATCents(plan)), c.Format(c.TotalCents(plan)))
			h.rawf(`<p>%s annonces</p><ul>`, strconv.Itoa(plan.Listings))
			for _, f := range plan.Features {
				h.rawf(`<li>%s</li>`, f)
			}
			h.raw(`</ul>`)
			if plan.ID == p.CurrentPlan {
				h.raw(`<p class="current">Votre formule actuelle</p>`)
			}
			h.rawf(`<button data-plan="%s" onclick="startCheckout(this.dataset.plan)">Choisir</button></section>`, plan.ID)
		}
		h.raw(`</div><p id="checkout-error" class="field-error"></p>`)
		h.raw(`<script>async function startCheckout(packId){const r=await fetch('/api/checkout',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({packId})});const b=await r.json();if(r.ok&&b.url){window.location.href=b.url;return}document.getElementById('checkout-error').textContent=b.error||'Erreur'}</script>`)
	})
}

func successPage(p SuccessPageParams) templ.Component {
	return page("Paiement reçu", func(h *html) {
		h.raw(`<h1>Merci !</h1><p>Votre paiement a bien été reçu. Votre espace sera activé dans quelques instants.</p>`)
		if p.SessionID != "" {
			h.rawf(`<p class="reference">Référence : %s</p>`, p.SessionID)
		}
		h.rawf(`<a href="%s">Accéder à mon espace</a>`, onboarding.PathDashboard)
	})
}

func dashboardPage(p DashboardPageParams) templ.Component {
	return page("Tableau de bord", func(h *html) {
		name := p.Profile.FirstName
		if name == "" {
			name = p.Profile.Email
		}
		h.rawf(`<h1>Bonjour %s</h1>`, name)
		if t := p.Tenant; t != nil {
			h.rawf(`<section class="agency"><h2>%s</h2>`, t.Name)
			h.rawf(`<p>Abonnement : %s (%s)</p>`, t.SubscriptionPlan, t.SubscriptionStatus)
			if p.IsOwner {
				h.rawf(`<p>Code d'invitation : <strong>%s</strong></p>`, t.InviteCode)
				h.rawf(`<img src="%s" alt="QR code d'invitation" width="192" height="192">`, onboarding.PathDashboard+"/agency/invite.png")
				h.rawf(`<p><a href="%s">%s</a></p>`, p.InviteURL, p.InviteURL)
				h.raw(`<form method="post" action="/api/billing/portal" onsubmit="openPortal(event)"><button type="submit">Gérer mon abonnement</button></form>`)
				h.raw(`<script>async function openPortal(e){e.preventDefault();const r=await fetch('/api/billing/portal',{method:'POST'});const b=await r.json();if(r.ok&&b.url){window.location.href=b.url}}</script>`)
			}
			h.raw(`</section>`)
		}
	})
}

func accessDeniedPage() templ.Component {
	return page("Accès refusé", func(h *html) {
		h.raw(`<h1>Accès refusé</h1><p>Votre compte professionnel n'est pas encore actif.</p>`)
		h.rawf(`<a href="%s">Reprendre mon inscription</a>`, onboarding.PathOnboarding)
	})
}

func errorPage(p handler.ErrorPageParams) templ.Component {
	return page("Erreur", func(h *html) {
		h.rawf(`<h1>Erreur %s</h1><p>%s</p>`, strconv.Itoa(p.StatusCode), p.Error)
		if p.RequestID != "" {
			h.rawf(`<p class="request-id">%s</p>`, p.RequestID)
		}
	})
}

func errorToast(p handler.ErrorToastParams) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		h.rawf(`<div class="toast toast-%s" role="alert">%s</div>`, p.Type, p.Message)
		return h.err
	})
}
