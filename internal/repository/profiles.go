package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/pg"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

const getProfile = `
SELECT user_id, first_name, last_name, phone, email, onboarding_step, is_pro, is_admin, created_at, updated_at
FROM profiles
WHERE user_id = $1`

func (q *Queries) GetProfile(ctx context.Context, userID uuid.UUID) (*onboarding.Profile, error) {
	var p onboarding.Profile
	err := q.db.QueryRow(ctx, getProfile, userID).Scan(
		&p.UserID, &p.FirstName, &p.LastName, &p.Phone, &p.Email,
		&p.Step, &p.IsPro, &p.IsAdmin, &p.CreatedAt, &p.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, onboarding.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

const ensureProfile = `
INSERT INTO profiles (user_id, email)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET email = CASE WHEN profiles.email = '' THEN EXCLUDED.email ELSE profiles.email END`

func (q *Queries) EnsureProfile(ctx context.Context, userID uuid.UUID, email string) error {
	if _, err := q.db.Exec(ctx, ensureProfile, userID, email); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

const upsertProfile = `
INSERT INTO profiles (user_id, first_name, last_name, phone)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name  = EXCLUDED.last_name,
    phone      = EXCLUDED.phone,
    updated_at = now()`

func (q *Queries) UpsertProfile(ctx context.Context, userID uuid.UUID, f onboarding.ProfileFields) error {
	if _, err := q.db.Exec(ctx, upsertProfile, userID, f.FirstName, f.LastName, f.Phone); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// The step only moves forward: concurrent writers converge on the highest value.
const advanceStep = `
INSERT INTO profiles (user_id, onboarding_step)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
SET onboarding_step = GREATEST(profiles.onboarding_step, EXCLUDED.onboarding_step),
    updated_at      = now()
RETURNING onboarding_step`

func (q *Queries) AdvanceStep(ctx context.Context, userID uuid.UUID, step int) (int, error) {
	var current int
	if err := q.db.QueryRow(ctx, advanceStep, userID, step).Scan(&current); err != nil {
		return 0, fmt.Errorf("advance onboarding step: %w", err)
	}
	return current, nil
}

const markPro = `
INSERT INTO profiles (user_id, is_pro)
VALUES ($1, TRUE)
ON CONFLICT (user_id) DO UPDATE
SET is_pro = TRUE, updated_at = now()`

func (q *Queries) MarkPro(ctx context.Context, userID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, markPro, userID); err != nil {
		return fmt.Errorf("mark profile pro: %w", err)
	}
	return nil
}

const completeOnboarding = `
INSERT INTO profiles (user_id, onboarding_step, is_pro)
VALUES ($1, $2, TRUE)
ON CONFLICT (user_id) DO UPDATE
SET onboarding_step = GREATEST(profiles.onboarding_step, EXCLUDED.onboarding_step),
    is_pro          = TRUE,
    updated_at      = now()`

func (q *Queries) CompleteOnboarding(ctx context.Context, userID uuid.UUID) error {
	if _, err := q.db.Exec(ctx, completeOnboarding, userID, onboarding.StepComplete); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	return nil
}
