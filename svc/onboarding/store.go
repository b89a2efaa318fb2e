package onboarding

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence surface used by the step controllers.
// Implementations must make AdvanceStep monotone.
type Repository interface {
	ProfileReader
	EnsureProfile(ctx context.Context, userID uuid.UUID, email string) error
	UpsertProfile(ctx context.Context, userID uuid.UUID, fields ProfileFields) error
	// AdvanceStep sets onboarding_step to GREATEST(current, step) and returns the result.
	AdvanceStep(ctx context.Context, userID uuid.UUID, step int) (int, error)
	MarkPro(ctx context.Context, userID uuid.UUID) error

	GetTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*Tenant, error)
	GetTenantByInviteCode(ctx context.Context, code string) (*Tenant, error)
	// InsertTenant returns ErrTenantConflict when the owner or invite code is taken.
	InsertTenant(ctx context.Context, t NewTenant) (*Tenant, error)
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role Role) error
	UpdateAgency(ctx context.Context, ownerID uuid.UUID, fields AgencyFields) error
	UpdateShowcase(ctx context.Context, ownerID uuid.UUID, fields ShowcaseFields) error
}

// Store runs fn inside a single database transaction.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
