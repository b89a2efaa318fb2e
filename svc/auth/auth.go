// Package auth resolves the externally issued session token into an Identity.
package auth

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/jwt"
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrInvalidSubject  = errors.New("auth: token subject is not a user id")
)

type Config struct {
	JWTSecret  string `env:"AUTH_JWT_SECRET,required"`
	CookieName string `env:"AUTH_COOKIE_NAME" envDefault:"access_token"`
}

// Identity is the authenticated user as seen by the onboarding flow.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// Claims mirrors the access tokens issued by the identity provider.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

// Identity validates the subject and returns the identity it names.
func (c Claims) Identity() (Identity, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return Identity{}, ErrInvalidSubject
	}
	return Identity{UserID: id, Email: strings.ToLower(strings.TrimSpace(c.Email))}, nil
}
