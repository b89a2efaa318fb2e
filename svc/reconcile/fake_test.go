package reconcile_test

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/svc/reconcile"
)

type profile struct {
	Step  int
	IsPro bool
}

// memLedger is an in-memory reconcile.Store. InTx is serialised and rolls
// back on error.
type memLedger struct {
	mu       sync.Mutex
	events   map[string]reconcile.EventRecord
	tenants  map[uuid.UUID]reconcile.TenantState
	profiles map[uuid.UUID]profile
	failOn   string
}

func newMemLedger() *memLedger {
	return &memLedger{
		events:   map[string]reconcile.EventRecord{},
		tenants:  map[uuid.UUID]reconcile.TenantState{},
		profiles: map[uuid.UUID]profile{},
	}
}

func (m *memLedger) addTenant(t reconcile.TenantState) reconcile.TenantState {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.OwnerID == uuid.Nil {
		t.OwnerID = uuid.New()
	}
	if t.Status == "" {
		t.Status = "trialing"
	}
	m.tenants[t.ID] = t
	m.profiles[t.OwnerID] = profile{Step: 4}
	return t
}

func (m *memLedger) tenant(id uuid.UUID) reconcile.TenantState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tenants[id]
}

func (m *memLedger) InTx(ctx context.Context, fn func(reconcile.Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, tenants, profiles := maps.Clone(m.events), maps.Clone(m.tenants), maps.Clone(m.profiles)
	if err := fn(m); err != nil {
		m.events, m.tenants, m.profiles = events, tenants, profiles
		return err
	}
	return nil
}

func (m *memLedger) InsertEvent(_ context.Context, rec reconcile.EventRecord) (bool, error) {
	if _, ok := m.events[rec.EventID]; ok {
		return false, nil
	}
	m.events[rec.EventID] = rec
	return true, nil
}

func (m *memLedger) SetEventOutcome(_ context.Context, eventID string, tenantID *uuid.UUID, outcome reconcile.Outcome) error {
	rec := m.events[eventID]
	rec.TenantID, rec.Outcome = tenantID, outcome
	m.events[eventID] = rec
	return nil
}

func (m *memLedger) find(match func(reconcile.TenantState) bool) (*reconcile.TenantState, error) {
	for _, t := range m.tenants {
		if match(t) {
			return &t, nil
		}
	}
	return nil, reconcile.ErrTenantNotFound
}

func (m *memLedger) LockTenantByID(_ context.Context, id uuid.UUID) (*reconcile.TenantState, error) {
	return m.find(func(t reconcile.TenantState) bool { return t.ID == id })
}

func (m *memLedger) LockTenantByOwner(_ context.Context, ownerID uuid.UUID) (*reconcile.TenantState, error) {
	return m.find(func(t reconcile.TenantState) bool { return t.OwnerID == ownerID })
}

func (m *memLedger) LockTenantByCustomer(_ context.Context, customerID string) (*reconcile.TenantState, error) {
	return m.find(func(t reconcile.TenantState) bool { return t.CustomerID == customerID })
}

func (m *memLedger) UpdateTenant(_ context.Context, id uuid.UUID, p reconcile.Patch) error {
	if m.failOn == "UpdateTenant" {
		return context.DeadlineExceeded
	}
	if p.CustomerID != nil {
		for _, other := range m.tenants {
			if other.ID != id && other.CustomerID == *p.CustomerID {
				return reconcile.ErrCustomerConflict
			}
		}
	}
	t := m.tenants[id]
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.Status, p.Status)
	set(&t.Plan, p.Plan)
	set(&t.CustomerID, p.CustomerID)
	set(&t.SubscriptionID, p.SubscriptionID)
	set(&t.LegalName, p.LegalName)
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	if p.StatusEventAt != nil {
		at := *p.StatusEventAt
		t.StatusEventAt = &at
	}
	if p.PlanEventAt != nil {
		at := *p.PlanEventAt
		t.PlanEventAt = &at
	}
	m.tenants[id] = t
	return nil
}

func (m *memLedger) CompleteOnboarding(_ context.Context, userID uuid.UUID) error {
	p := m.profiles[userID]
	p.Step = max(p.Step, 5)
	p.IsPro = true
	m.profiles[userID] = p
	return nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (func(context.Context), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, true, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []reconcile.Activation
	err  error
}

func (n *recordingNotifier) NotifyActivated(_ context.Context, a reconcile.Activation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
