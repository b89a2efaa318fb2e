package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/prokit/pkg/file"
	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/svc/auth"
)

type Config struct {
	RequireVAT     bool  `env:"ONBOARDING_REQUIRE_VAT" envDefault:"false"`
	MaxUploadBytes int64 `env:"ONBOARDING_MAX_UPLOAD_BYTES" envDefault:"5242880"`
}

type Service struct {
	store  Store
	assets file.Storage
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now for upload key generation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, assets file.Storage, cfg Config, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	s := &Service{
		store:  store,
		assets: assets,
		cfg:    cfg,
		log:    log.With(logger.Component("onboarding")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State is what a step page needs to render.
type State struct {
	Profile *Profile
	Tenant  *Tenant
}

// LoadState reads the profile and tenant of id. Missing records are
// returned as a zero profile and a nil tenant.
func (s *Service) LoadState(ctx context.Context, id auth.Identity) (*State, error) {
	profile, err := s.store.GetProfile(ctx, id.UserID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		profile = &Profile{UserID: id.UserID, Email: id.Email}
	case err != nil:
		return nil, err
	}

	tenant, err := s.store.GetTenantByOwner(ctx, id.UserID)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}
	return &State{Profile: profile, Tenant: tenant}, nil
}

// ChooseRole records the role choice and returns the next page.
func (s *Service) ChooseRole(ctx context.Context, id auth.Identity, role string) (string, error) {
	if err := validateRole(role); err != nil {
		return "", err
	}
	if role == RoleJoiner {
		return PathJoinAgency, nil
	}

	err := s.store.InTx(ctx, func(repo Repository) error {
		if err := repo.EnsureProfile(ctx, id.UserID, id.Email); err != nil {
			return err
		}
		_, err := repo.AdvanceStep(ctx, id.UserID, StepProfile)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to record role choice", logger.UserID(id.UserID), logger.Error(err))
		return "", err
	}
	return PathOnboarding, nil
}

func (s *Service) SaveProfile(ctx context.Context, id auth.Identity, in ProfileInput) (string, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return "", err
	}

	err := s.store.InTx(ctx, func(repo Repository) error {
		if err := repo.EnsureProfile(ctx, id.UserID, id.Email); err != nil {
			return err
		}
		if err := repo.UpsertProfile(ctx, id.UserID, ProfileFields(in)); err != nil {
			return err
		}
		_, err := repo.AdvanceStep(ctx, id.UserID, StepAgency)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to save profile", logger.UserID(id.UserID), logger.Error(err))
		return "", err
	}
	return NextPath(StepProfile), nil
}

// RequiresVAT reports whether SaveAgency demands a VAT number.
func (s *Service) RequiresVAT() bool { return s.cfg.RequireVAT }

func (s *Service) SaveAgency(ctx context.Context, id auth.Identity, in AgencyInput) (string, error) {
	in = in.normalize()
	if err := in.validate(s.cfg.RequireVAT); err != nil {
		return "", err
	}

	err := s.store.InTx(ctx, func(repo Repository) error {
		if _, err := EnsureTenant(ctx, repo, id); err != nil {
			return err
		}
		if err := repo.UpdateAgency(ctx, id.UserID, in.fields()); err != nil {
			return err
		}
		_, err := repo.AdvanceStep(ctx, id.UserID, StepShowcase)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to save agency", logger.UserID(id.UserID), logger.Error(err))
		return "", err
	}
	return NextPath(StepAgency), nil
}

// SaveShowcase uploads new images before opening the transaction; uploads
// are removed again when the transaction fails.
func (s *Service) SaveShowcase(ctx context.Context, id auth.Identity, in ShowcaseInput) (string, error) {
	in = in.normalize()

	existing, err := s.store.GetTenantByOwner(ctx, id.UserID)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		return "", err
	}
	hasLogo := existing != nil && existing.LogoURL != ""
	if err := in.validate(hasLogo, s.cfg.MaxUploadBytes); err != nil {
		return "", err
	}

	fields := ShowcaseFields{Description: in.Description}
	var uploaded []string
	cleanup := func() {
		for _, path := range uploaded {
			if err := s.assets.Delete(context.WithoutCancel(ctx), path); err != nil {
				s.log.WarnContext(ctx, "failed to remove orphaned upload", slog.String("path", path), logger.Error(err))
			}
		}
	}

	if in.Logo != nil {
		f, err := s.upload(ctx, id.UserID, "logo", in.Logo)
		if err != nil {
			return "", err
		}
		uploaded = append(uploaded, f.RelativePath)
		fields.LogoURL = f.URL
	}
	if in.Banner != nil {
		f, err := s.upload(ctx, id.UserID, "banner", in.Banner)
		if err != nil {
			cleanup()
			return "", err
		}
		uploaded = append(uploaded, f.RelativePath)
		fields.BannerURL = f.URL
	}

	err = s.store.InTx(ctx, func(repo Repository) error {
		if _, err := EnsureTenant(ctx, repo, id); err != nil {
			return err
		}
		if err := repo.UpdateShowcase(ctx, id.UserID, fields); err != nil {
			return err
		}
		_, err := repo.AdvanceStep(ctx, id.UserID, StepPlan)
		return err
	})
	if err != nil {
		cleanup()
		s.log.ErrorContext(ctx, "failed to save showcase", logger.UserID(id.UserID), logger.Error(err))
		return "", err
	}
	return NextPath(StepShowcase), nil
}

// EnsureTenant runs the package-level EnsureTenant in its own transaction.
func (s *Service) EnsureTenant(ctx context.Context, id auth.Identity) (*Tenant, error) {
	var t *Tenant
	err := s.store.InTx(ctx, func(repo Repository) error {
		var err error
		t, err = EnsureTenant(ctx, repo, id)
		return err
	})
	return t, err
}

// JoinAgency attaches id to the active tenant behind code as an agent and
// completes onboarding for them.
func (s *Service) JoinAgency(ctx context.Context, id auth.Identity, code string) (string, error) {
	code = NormalizeInviteCode(code)
	if err := validateInviteCode(code); err != nil {
		return "", err
	}

	tenant, err := s.store.GetTenantByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return "", ErrInviteNotFound
		}
		return "", err
	}
	if !tenant.IsActive {
		return "", ErrAgencyInactive
	}

	err = s.store.InTx(ctx, func(repo Repository) error {
		if err := repo.EnsureProfile(ctx, id.UserID, id.Email); err != nil {
			return err
		}
		if err := repo.AddMember(ctx, tenant.ID, id.UserID, RoleAgent); err != nil {
			return err
		}
		if _, err := repo.AdvanceStep(ctx, id.UserID, StepComplete); err != nil {
			return err
		}
		return repo.MarkPro(ctx, id.UserID)
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to join agency",
			logger.UserID(id.UserID), logger.TenantID(tenant.ID), logger.Error(err))
		return "", err
	}
	s.log.InfoContext(ctx, "agent joined agency", logger.UserID(id.UserID), logger.TenantID(tenant.ID))
	return PathDashboard, nil
}

func (s *Service) upload(ctx context.Context, userID uuid.UUID, field string, fh *multipart.FileHeader) (*file.File, error) {
	path := fmt.Sprintf("%s/%s-%d%s", userID, field, s.now().Unix(), file.ImageExtension(fh))
	f, err := s.assets.Save(ctx, fh, path)
	if err != nil {
		s.log.ErrorContext(ctx, "asset upload failed",
			logger.UserID(userID), slog.String("field", field), logger.Error(err))
		return nil, errors.Join(ErrUploadFailed, err)
	}
	return f, nil
}
