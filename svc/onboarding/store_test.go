package onboarding_test

import (
	"context"
	"maps"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/prokit/pkg/file"
	"github.com/dmitrymomot/prokit/svc/onboarding"
)

type memberKey struct{ tenant, user uuid.UUID }

// memStore is an in-memory onboarding.Store. InTx restores the previous
// state when fn fails.
type memStore struct {
	profiles map[uuid.UUID]onboarding.Profile
	tenants  map[uuid.UUID]onboarding.Tenant
	members  map[memberKey]onboarding.Role
	fail     map[string]error
	txCount  int
}

func newMemStore() *memStore {
	return &memStore{
		profiles: map[uuid.UUID]onboarding.Profile{},
		tenants:  map[uuid.UUID]onboarding.Tenant{},
		members:  map[memberKey]onboarding.Role{},
		fail:     map[string]error{},
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(repo onboarding.Repository) error) error {
	m.txCount++
	profiles, tenants, members := maps.Clone(m.profiles), maps.Clone(m.tenants), maps.Clone(m.members)
	if err := fn(m); err != nil {
		m.profiles, m.tenants, m.members = profiles, tenants, members
		return err
	}
	return nil
}

func (m *memStore) GetProfile(_ context.Context, userID uuid.UUID) (*onboarding.Profile, error) {
	if err := m.fail["GetProfile"]; err != nil {
		return nil, err
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, onboarding.ErrProfileNotFound
	}
	return &p, nil
}

func (m *memStore) EnsureProfile(_ context.Context, userID uuid.UUID, email string) error {
	if _, ok := m.profiles[userID]; !ok {
		m.profiles[userID] = onboarding.Profile{UserID: userID, Email: email}
	}
	return nil
}

func (m *memStore) UpsertProfile(_ context.Context, userID uuid.UUID, f onboarding.ProfileFields) error {
	p := m.profiles[userID]
	p.UserID, p.FirstName, p.LastName, p.Phone = userID, f.FirstName, f.LastName, f.Phone
	m.profiles[userID] = p
	return nil
}

func (m *memStore) AdvanceStep(_ context.Context, userID uuid.UUID, step int) (int, error) {
	if err := m.fail["AdvanceStep"]; err != nil {
		return 0, err
	}
	p := m.profiles[userID]
	p.UserID = userID
	p.Step = max(p.Step, step)
	m.profiles[userID] = p
	return p.Step, nil
}

func (m *memStore) MarkPro(_ context.Context, userID uuid.UUID) error {
	p := m.profiles[userID]
	p.IsPro = true
	m.profiles[userID] = p
	return nil
}

func (m *memStore) GetTenantByOwner(_ context.Context, ownerID uuid.UUID) (*onboarding.Tenant, error) {
	for _, t := range m.tenants {
		if t.OwnerID == ownerID {
			return &t, nil
		}
	}
	return nil, onboarding.ErrTenantNotFound
}

func (m *memStore) GetTenantByInviteCode(_ context.Context, code string) (*onboarding.Tenant, error) {
	for _, t := range m.tenants {
		if t.InviteCode == code {
			return &t, nil
		}
	}
	return nil, onboarding.ErrTenantNotFound
}

func (m *memStore) InsertTenant(_ context.Context, nt onboarding.NewTenant) (*onboarding.Tenant, error) {
	for _, t := range m.tenants {
		if t.OwnerID == nt.OwnerID || t.InviteCode == nt.InviteCode {
			return nil, onboarding.ErrTenantConflict
		}
	}
	t := onboarding.Tenant{
		ID:                 uuid.New(),
		OwnerID:            nt.OwnerID,
		Email:              nt.Email,
		InviteCode:         nt.InviteCode,
		SubscriptionStatus: onboarding.StatusTrialing,
	}
	m.tenants[t.ID] = t
	return &t, nil
}

func (m *memStore) AddMember(_ context.Context, tenantID, userID uuid.UUID, role onboarding.Role) error {
	key := memberKey{tenantID, userID}
	if _, ok := m.members[key]; !ok {
		m.members[key] = role
	}
	return nil
}

func (m *memStore) UpdateAgency(_ context.Context, ownerID uuid.UUID, f onboarding.AgencyFields) error {
	if err := m.fail["UpdateAgency"]; err != nil {
		return err
	}
	t, err := m.GetTenantByOwner(context.Background(), ownerID)
	if err != nil {
		return err
	}
	t.Name, t.LegalName, t.Type, t.SIRET, t.VATNumber = f.Name, f.LegalName, f.Type, f.SIRET, f.VATNumber
	t.Phone, t.Website, t.StreetAddress, t.City, t.ZipCode = f.Phone, f.Website, f.StreetAddress, f.City, f.ZipCode
	if f.Email != "" {
		t.Email = f.Email
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *memStore) UpdateShowcase(_ context.Context, ownerID uuid.UUID, f onboarding.ShowcaseFields) error {
	if err := m.fail["UpdateShowcase"]; err != nil {
		return err
	}
	t, err := m.GetTenantByOwner(context.Background(), ownerID)
	if err != nil {
		return err
	}
	t.Description = f.Description
	if f.LogoURL != "" {
		t.LogoURL = f.LogoURL
	}
	if f.BannerURL != "" {
		t.BannerURL = f.BannerURL
	}
	m.tenants[t.ID] = *t
	return nil
}

type mockStorage struct{ mock.Mock }

func (m *mockStorage) Save(ctx context.Context, fh *multipart.FileHeader, path string) (*file.File, error) {
	args := m.Called(ctx, fh, path)
	f, _ := args.Get(0).(*file.File)
	return f, args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *mockStorage) URL(path string) string {
	return "https://assets.test/" + path
}
