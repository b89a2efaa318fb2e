package onboarding

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dmitrymomot/prokit/pkg/sanitizer"
	"github.com/dmitrymomot/prokit/svc/auth"
)

const (
	invitePrefix     = "UB-"
	inviteCodeLength = 5
	inviteAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	inviteAttempts   = 5
)

// MinInviteCodeLength applies to user input after normalisation.
const MinInviteCodeLength = 5

// NewInviteCode returns a code of the form UB-XXXXX.
func NewInviteCode() (string, error) {
	var b strings.Builder
	b.WriteString(invitePrefix)
	limit := big.NewInt(int64(len(inviteAlphabet)))
	for range inviteCodeLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode trims and upper-cases user input.
func NormalizeInviteCode(code string) string {
	return sanitizer.Apply(code, sanitizer.Trim, sanitizer.ToUpper)
}

// PlaceholderEmail is stored on tenants created for identities without an email.
func PlaceholderEmail(id auth.Identity) string {
	return id.UserID.String() + "@placeholder.local"
}

// EnsureTenant returns the tenant owned by id, creating it together with the
// owner membership row when missing. It is the only tenant creation path and
// is safe to call repeatedly and concurrently.
func EnsureTenant(ctx context.Context, repo Repository, id auth.Identity) (*Tenant, error) {
	t, err := repo.GetTenantByOwner(ctx, id.UserID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}

	email := id.Email
	if email == "" {
		email = PlaceholderEmail(id)
	}

	for range inviteAttempts {
		code, err := NewInviteCode()
		if err != nil {
			return nil, err
		}
		t, err = repo.InsertTenant(ctx, NewTenant{OwnerID: id.UserID, Email: email, InviteCode: code})
		if errors.Is(err, ErrTenantConflict) {
			// Either a concurrent request created the tenant or the code collided.
			existing, getErr := repo.GetTenantByOwner(ctx, id.UserID)
			if getErr == nil {
				return existing, nil
			}
			if !errors.Is(getErr, ErrTenantNotFound) {
				return nil, getErr
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := repo.AddMember(ctx, t.ID, id.UserID, RoleOwner); err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, ErrInviteExhausted
}
