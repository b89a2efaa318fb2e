package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventRecord is a row of the processed-events ledger.
type EventRecord struct {
	EventID    string
	Provider   string
	EventType  string
	TenantID   *uuid.UUID
	OccurredAt time.Time
	Outcome    Outcome
}

// Ledger is the transaction-scoped persistence used while applying one event.
type Ledger interface {
	// InsertEvent returns false when the event id is already recorded.
	InsertEvent(ctx context.Context, rec EventRecord) (bool, error)
	SetEventOutcome(ctx context.Context, eventID string, tenantID *uuid.UUID, outcome Outcome) error

	// The LockTenant methods take a row lock held until the transaction ends
	// and return ErrTenantNotFound when nothing matches.
	LockTenantByID(ctx context.Context, id uuid.UUID) (*TenantState, error)
	LockTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*TenantState, error)
	LockTenantByCustomer(ctx context.Context, customerID string) (*TenantState, error)

	// UpdateTenant returns ErrCustomerConflict when p.CustomerID is already
	// stored on another tenant.
	UpdateTenant(ctx context.Context, tenantID uuid.UUID, p Patch) error
	// CompleteOnboarding sets onboarding_step to GREATEST(step, 5) and is_pro.
	CompleteOnboarding(ctx context.Context, userID uuid.UUID) error
}

type Store interface {
	InTx(ctx context.Context, fn func(Ledger) error) error
}

// Locker guards an event id against concurrent deliveries.
// *redis.Locker satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context), ok bool, err error)
}
