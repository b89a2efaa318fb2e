package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/prokit/pkg/pg"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

const tenantColumns = `
id, owner_id, name, legal_name, type, siret, vat_number, email, phone, website,
street_address, city, zip_code, description, logo_url, banner_url, invite_code,
subscription_status, COALESCE(subscription_plan, ''), is_active,
COALESCE(payment_customer_id, ''), COALESCE(payment_subscription_id, ''),
status_event_at, plan_event_at, created_at, updated_at`

func scanTenant(row pgx.Row) (*onboarding.Tenant, error) {
	var t onboarding.Tenant
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Name, &t.LegalName, &t.Type, &t.SIRET, &t.VATNumber, &t.Email, &t.Phone, &t.Website,
		&t.StreetAddress, &t.City, &t.ZipCode, &t.Description, &t.LogoURL, &t.BannerURL, &t.InviteCode,
		&t.SubscriptionStatus, &t.SubscriptionPlan, &t.IsActive,
		&t.PaymentCustomerID, &t.PaymentSubscriptionID,
		&t.StatusEventAt, &t.PlanEventAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q *Queries) GetTenantByOwner(ctx context.Context, ownerID uuid.UUID) (*onboarding.Tenant, error) {
	t, err := scanTenant(q.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE owner_id = $1`, ownerID))
	if pg.IsNotFoundError(err) {
		return nil, onboarding.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by owner: %w", err)
	}
	return t, nil
}

func (q *Queries) GetTenantByInviteCode(ctx context.Context, code string) (*onboarding.Tenant, error) {
	t, err := scanTenant(q.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE invite_code = $1`, code))
	if pg.IsNotFoundError(err) {
		return nil, onboarding.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by invite code: %w", err)
	}
	return t, nil
}

// ON CONFLICT DO NOTHING keeps the surrounding transaction usable when the
// owner or the invite code is already taken.
const insertTenant = `
INSERT INTO tenants (id, owner_id, email, invite_code)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
RETURNING ` + tenantColumns

func (q *Queries) InsertTenant(ctx context.Context, nt onboarding.NewTenant) (*onboarding.Tenant, error) {
	t, err := scanTenant(q.db.QueryRow(ctx, insertTenant, uuid.New(), nt.OwnerID, nt.Email, nt.InviteCode))
	if pg.IsNotFoundError(err) || pg.IsDuplicateKeyError(err) {
		return nil, onboarding.ErrTenantConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

const addMember = `
INSERT INTO tenant_members (tenant_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, user_id) DO NOTHING`

func (q *Queries) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role onboarding.Role) error {
	if _, err := q.db.Exec(ctx, addMember, tenantID, userID, string(role)); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return onboarding.ErrTenantNotFound
		}
		return fmt.Errorf("add tenant member: %w", err)
	}
	return nil
}

// An empty email keeps the one captured when the tenant was created.
const updateAgency = `
UPDATE tenants
SET name           = $2,
    legal_name     = $3,
    type           = $4,
    siret          = $5,
    vat_number     = $6,
    email          = COALESCE(NULLIF($7::text, ''), email),
    phone          = $8,
    website        = $9,
    street_address = $10,
    city           = $11,
    zip_code       = $12,
    updated_at     = now()
WHERE owner_id = $1`

func (q *Queries) UpdateAgency(ctx context.Context, ownerID uuid.UUID, f onboarding.AgencyFields) error {
	tag, err := q.db.Exec(ctx, updateAgency, ownerID,
		f.Name, f.LegalName, f.Type, f.SIRET, f.VATNumber, f.Email,
		f.Phone, f.Website, f.StreetAddress, f.City, f.ZipCode,
	)
	if err != nil {
		return fmt.Errorf("update agency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return onboarding.ErrTenantNotFound
	}
	return nil
}

const updateShowcase = `
UPDATE tenants
SET description = $2,
    logo_url    = COALESCE(NULLIF($3::text, ''), logo_url),
    banner_url  = COALESCE(NULLIF($4::text, ''), banner_url),
    updated_at  = now()
WHERE owner_id = $1`

func (q *Queries) UpdateShowcase(ctx context.Context, ownerID uuid.UUID, f onboarding.ShowcaseFields) error {
	tag, err := q.db.Exec(ctx, updateShowcase, ownerID, f.Description, f.LogoURL, f.BannerURL)
	if err != nil {
		return fmt.Errorf("update showcase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return onboarding.ErrTenantNotFound
	}
	return nil
}

// First writer wins: an existing customer id is never replaced.
const setPaymentCustomer = `
UPDATE tenants
SET payment_customer_id = COALESCE(payment_customer_id, $2),
    updated_at          = now()
WHERE id = $1
RETURNING payment_customer_id`

func (q *Queries) SetPaymentCustomer(ctx context.Context, tenantID uuid.UUID, customerID string) (string, error) {
	var stored string
	err := q.db.QueryRow(ctx, setPaymentCustomer, tenantID, customerID).Scan(&stored)
	if pg.IsNotFoundError(err) {
		return "", onboarding.ErrTenantNotFound
	}
	if err != nil {
		return "", fmt.Errorf("set payment customer: %w", err)
	}
	return stored, nil
}
