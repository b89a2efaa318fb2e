// Package reconcile applies verified billing events to tenants and profiles.
// Each event is recorded once in a ledger; tenant fields follow per-field
// logical clocks so late deliveries cannot undo newer state.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/billing"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeStale      Outcome = "stale"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeConflict   Outcome = "conflict"
)

// Response statuses reported to the provider.
const (
	StatusProcessed = "processed"
	StatusIgnored   = "ignored"
	StatusDuplicate = "duplicate"
)

// Transition is the effect of one event kind.
type Transition struct {
	// RequiresPayment skips events whose payment is not confirmed.
	RequiresPayment bool
	Status          string
	IsActive        bool
	// AssignPlan copies plan, customer and subscription references.
	AssignPlan bool
	// CompleteOnboarding moves the owner to the final step and grants is_pro.
	CompleteOnboarding bool
}

var transitions = map[billing.Kind]Transition{
	billing.KindCheckoutCompleted: {
		RequiresPayment:    true,
		Status:             onboarding.StatusActive,
		IsActive:           true,
		AssignPlan:         true,
		CompleteOnboarding: true,
	},
	billing.KindInvoicePaid:           {Status: onboarding.StatusActive, IsActive: true},
	billing.KindInvoicePaymentFailed:  {Status: onboarding.StatusPastDue, IsActive: false},
	billing.KindSubscriptionCancelled: {Status: onboarding.StatusPastDue, IsActive: false},
}

// TransitionFor returns the transition registered for kind.
func TransitionFor(kind billing.Kind) (Transition, bool) {
	t, ok := transitions[kind]
	return t, ok
}

// TenantState is the locked tenant row as seen by Apply.
type TenantState struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Email          string
	LegalName      string
	Status         string
	Plan           string
	IsActive       bool
	CustomerID     string
	SubscriptionID string
	StatusEventAt  *time.Time
	PlanEventAt    *time.Time
}

// Patch lists the assignments to write. Nil fields are left unchanged.
type Patch struct {
	Status        *string
	IsActive      *bool
	StatusEventAt *time.Time

	Plan           *string
	CustomerID     *string
	SubscriptionID *string
	PlanEventAt    *time.Time

	LegalName *string

	CompleteOnboarding bool
}

// TenantChanged reports whether any tenant column is assigned.
func (p Patch) TenantChanged() bool {
	return p.StatusEventAt != nil || p.PlanEventAt != nil || p.LegalName != nil
}

// Apply computes the writes evt causes on a tenant in state. It performs no
// I/O and is the single place where the transition table is interpreted.
func Apply(state TenantState, evt billing.Event) (Patch, Outcome) {
	t, ok := transitions[evt.Kind]
	if !ok {
		return Patch{}, OutcomeIgnored
	}
	if t.RequiresPayment && !evt.PaymentConfirmed {
		return Patch{}, OutcomeIgnored
	}

	at := evt.OccurredAt.UTC()
	var p Patch

	if notOlder(at, state.StatusEventAt) {
		status, active := t.Status, t.IsActive
		p.Status, p.IsActive, p.StatusEventAt = &status, &active, &at
	}

	if t.AssignPlan && notOlder(at, state.PlanEventAt) {
		if plan := evt.Metadata.PlanID; plan != "" {
			p.Plan = &plan
		}
		if cust := evt.CustomerID; cust != "" {
			p.CustomerID = &cust
		}
		if sub := evt.SubscriptionID; sub != "" {
			p.SubscriptionID = &sub
		}
		p.PlanEventAt = &at
	}

	if t.AssignPlan && state.LegalName == "" && evt.CustomerName != "" {
		name := evt.CustomerName
		p.LegalName = &name
	}

	p.CompleteOnboarding = t.CompleteOnboarding

	if !p.TenantChanged() && !p.CompleteOnboarding {
		return p, OutcomeStale
	}
	return p, OutcomeApplied
}

func notOlder(at time.Time, clock *time.Time) bool {
	return clock == nil || !at.Before(*clock)
}
