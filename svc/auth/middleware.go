package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/prokit/pkg/jwt"
	"github.com/dmitrymomot/prokit/pkg/logger"
)

// TokenParser is satisfied by *jwt.Service.
type TokenParser interface {
	Parse(token string, claims any) error
}

// Middleware attaches the Identity when the request carries a valid token.
// Requests without one pass through unauthenticated; gating is left to the
// onboarding guard and RequireUser.
func Middleware(parser TokenParser, extract jwt.Extractor, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extract(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var claims Claims
			if err := parser.Parse(token, &claims); err != nil {
				if !errors.Is(err, jwt.ErrExpiredToken) {
					log.DebugContext(r.Context(), "rejected session token", logger.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}
			id, err := claims.Identity()
			if err != nil {
				log.DebugContext(r.Context(), "rejected session token", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireUser answers 401 with a JSON body when no identity is present.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Non autorisé"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Extractor reads the token from the session cookie, falling back to a bearer header.
func Extractor(cfg Config) jwt.Extractor {
	return jwt.FirstOf(jwt.CookieTokenExtractor(cfg.CookieName), jwt.BearerTokenExtractor)
}
