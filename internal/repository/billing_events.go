package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/prokit/pkg/pg"
	"github.com/dmitrymomot/prokit/svc/reconcile"
)

// A concurrent insert of the same id blocks until the first transaction
// ends, then reports a duplicate.
const insertEvent = `
INSERT INTO billing_events (event_id, provider, event_type, tenant_id, occurred_at, outcome)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (event_id) DO NOTHING`

func (q *Queries) InsertEvent(ctx context.Context, rec reconcile.EventRecord) (bool, error) {
	tag, err := q.db.Exec(ctx, insertEvent,
		rec.EventID, rec.Provider, rec.EventType, rec.TenantID, rec.OccurredAt, string(rec.Outcome))
	if err != nil {
		return false, fmt.Errorf("insert billing event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const setEventOutcome = `
UPDATE billing_events
SET outcome = $2, tenant_id = $3
WHERE event_id = $1`

func (q *Queries) SetEventOutcome(ctx context.Context, eventID string, tenantID *uuid.UUID, outcome reconcile.Outcome) error {
	if _, err := q.db.Exec(ctx, setEventOutcome, eventID, string(outcome), tenantID); err != nil {
		return fmt.Errorf("set billing event outcome: %w", err)
	}
	return nil
}

const lockTenant = `
SELECT id, owner_id, email, legal_name, subscription_status,
       COALESCE(subscription_plan, ''), is_active,
       COALESCE(payment_customer_id, ''), COALESCE(payment_subscription_id, ''),
       status_event_at, plan_event_at
FROM tenants
WHERE %s = $1
FOR UPDATE`

var (
	lockTenantByID       = fmt.Sprintf(lockTenant, "id")
	lockTenantByOwner    = fmt.Sprintf(lockTenant, "owner_id")
	lockTenantByCustomer = fmt.Sprintf(lockTenant, "payment_customer_id")
)

func scanTenantState(row pgx.Row) (*reconcile.TenantState, error) {
	var s reconcile.TenantState
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Email, &s.LegalName, &s.Status,
		&s.Plan, &s.IsActive,
		&s.CustomerID, &s.SubscriptionID,
		&s.StatusEventAt, &s.PlanEventAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, reconcile.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock tenant: %w", err)
	}
	return &s, nil
}

func (q *Queries) LockTenantByID(ctx context.Context, id uuid.UUID) (*reconcile.TenantState, error) {
	return scanTenantState(q.db.QueryRow(ctx, lockTenantByID, id))
}

func (q *Queries) LockTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*reconcile.TenantState, error) {
	return scanTenantState(q.db.QueryRow(ctx, lockTenantByOwner, ownerID))
}

func (q *Queries) LockTenantByCustomer(ctx context.Context, customerID string) (*reconcile.TenantState, error) {
	if customerID == "" {
		return nil, reconcile.ErrTenantNotFound
	}
	return scanTenantState(q.db.QueryRow(ctx, lockTenantByCustomer, customerID))
}

// Nil patch fields bind as NULL and keep the current column value.
const updateTenant = `
UPDATE tenants
SET subscription_status     = COALESCE($2::text, subscription_status),
    is_active               = COALESCE($3::boolean, is_active),
    status_event_at         = COALESCE($4::timestamptz, status_event_at),
    subscription_plan       = COALESCE($5::text, subscription_plan),
    payment_customer_id     = COALESCE($6::text, payment_customer_id),
    payment_subscription_id = COALESCE($7::text, payment_subscription_id),
    plan_event_at           = COALESCE($8::timestamptz, plan_event_at),
    legal_name              = COALESCE($9::text, legal_name),
    updated_at              = now()
WHERE id = $1`

const customerTaken = `
SELECT EXISTS (SELECT 1 FROM tenants WHERE payment_customer_id = $1 AND id <> $2)`

// UpdateTenant checks the customer reference up front so a conflict leaves
// the transaction usable. A concurrent claim still surfaces as a unique
// violation; that aborts the transaction and the redelivery hits the check.
func (q *Queries) UpdateTenant(ctx context.Context, tenantID uuid.UUID, p reconcile.Patch) error {
	if p.CustomerID != nil && *p.CustomerID != "" {
		var taken bool
		if err := q.db.QueryRow(ctx, customerTaken, *p.CustomerID, tenantID).Scan(&taken); err != nil {
			return fmt.Errorf("check payment customer: %w", err)
		}
		if taken {
			return reconcile.ErrCustomerConflict
		}
	}

	tag, err := q.db.Exec(ctx, updateTenant, tenantID,
		p.Status, p.IsActive, p.StatusEventAt,
		p.Plan, p.CustomerID, p.SubscriptionID, p.PlanEventAt,
		p.LegalName,
	)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(reconcile.ErrCustomerConflict, err)
	}
	if err != nil {
		return fmt.Errorf("update tenant billing state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return reconcile.ErrTenantNotFound
	}
	return nil
}
