package reconcile

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/prokit/pkg/email"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

// EmailNotifier sends the subscription activation e-mail to the tenant.
type EmailNotifier struct {
	sender  email.Sender
	baseURL string
}

func NewEmailNotifier(sender email.Sender, baseURL string) *EmailNotifier {
	return &EmailNotifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *EmailNotifier) NotifyActivated(ctx context.Context, a Activation) error {
	if a.Email == "" || strings.HasSuffix(a.Email, "@placeholder.local") {
		return nil
	}
	body, err := email.Render(ctx, activationEmail(a.PlanID, n.baseURL+onboarding.PathDashboard))
	if err != nil {
		return err
	}
	return n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   a.Email,
		Subject:  "Votre abonnement est actif",
		BodyHTML: body,
		Tag:      "subscription-activated",
	})
}

func activationEmail(planID, dashboardURL string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<!doctype html><html><body><h1>Bienvenue !</h1><p>Votre abonnement <strong>%s</strong> est maintenant actif.</p><p><a href="%s">Accéder à votre espace</a></p></body></html>`,
			templ.EscapeString(planID), templ.EscapeString(dashboardURL))
		return err
	})
}
