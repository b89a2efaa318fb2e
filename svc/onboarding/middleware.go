package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/handler"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/svc/auth"
)

// ProfileReader loads the onboarding record for a user.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

type profileKey struct{}

// ProfileFromContext returns the profile the guard loaded for this request.
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	p, ok := ctx.Value(profileKey{}).(*Profile)
	return p, ok
}

// Guard enforces Policy.Authorize on every request. The profile is read
// fresh each time so a webhook-driven step change is visible on the next
// navigation.
func Guard(policy Policy, profiles ProfileReader, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With(logger.Component("onboarding.guard"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			req := Request{Path: r.URL.Path}

			id, authenticated := auth.FromContext(ctx)
			req.Authenticated = authenticated
			if authenticated && !policy.bypassed(req.Path) {
				profile, err := profiles.GetProfile(ctx, id.UserID)
				switch {
				case errors.Is(err, ErrProfileNotFound):
					profile = &Profile{UserID: id.UserID, Email: id.Email}
				case err != nil:
					log.ErrorContext(ctx, "failed to load profile", logger.UserID(id.UserID), logger.Error(err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				req.Step, req.IsPro, req.IsAdmin = profile.Step, profile.IsPro, profile.IsAdmin
				ctx = context.WithValue(ctx, profileKey{}, profile)
				r = r.WithContext(ctx)
			}

			decision := policy.Authorize(req)
			if !policy.bypassed(req.Path) {
				w.Header().Set("Cache-Control", "no-store")
			}
			if decision.Kind == Allow {
				next.ServeHTTP(w, r)
				return
			}

			log.DebugContext(ctx, "onboarding redirect",
				slog.String("path", req.Path),
				slog.String("decision", decision.Kind.String()),
				slog.String("target", decision.Target),
				logger.Step(req.Step),
			)
			if err := handler.Redirect(decision.Target).Render(w, r); err != nil {
				log.ErrorContext(ctx, "failed to render redirect", logger.Error(err))
			}
		})
	}
}

func (p Policy) bypassed(path string) bool {
	for _, prefix := range p.BypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
