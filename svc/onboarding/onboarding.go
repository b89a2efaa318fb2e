// Package onboarding owns the professional onboarding flow: the ordered step
// registry, the access guard that keeps users on their current step, and the
// step form controllers that persist each step and advance the counter.
package onboarding

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleOwner Role = "owner"
	RoleAgent Role = "agent"
)

// Subscription statuses written on tenants.
const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
	StatusPastDue  = "past_due"
)

// Profile is the per-user onboarding record. A missing row reads as the zero
// value: step 0 and no flags.
type Profile struct {
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Phone     string
	Email     string
	Step      int
	IsPro     bool
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tenant is the agency owned by a professional.
type Tenant struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	Name                  string
	LegalName             string
	Type                  string
	SIRET                 string
	VATNumber             string
	Email                 string
	Phone                 string
	Website               string
	StreetAddress         string
	City                  string
	ZipCode               string
	Description           string
	LogoURL               string
	BannerURL             string
	InviteCode            string
	SubscriptionStatus    string
	SubscriptionPlan      string
	IsActive              bool
	PaymentCustomerID     string
	PaymentSubscriptionID string
	StatusEventAt         *time.Time
	PlanEventAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewTenant is the creation payload used by EnsureTenant.
type NewTenant struct {
	OwnerID    uuid.UUID
	Email      string
	InviteCode string
}

type ProfileFields struct {
	FirstName string
	LastName  string
	Phone     string
}

type AgencyFields struct {
	Name          string
	LegalName     string
	Type          string
	SIRET         string
	VATNumber     string
	Email         string
	Phone         string
	Website       string
	StreetAddress string
	City          string
	ZipCode       string
}

// ShowcaseFields leaves LogoURL or BannerURL untouched when empty.
type ShowcaseFields struct {
	Description string
	LogoURL     string
	BannerURL   string
}
