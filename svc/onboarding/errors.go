package onboarding

import "errors"

var (
	ErrProfileNotFound = errors.New("onboarding: profile not found")
	ErrTenantNotFound  = errors.New("onboarding: tenant not found")
	// ErrTenantConflict is returned by InsertTenant when a unique key already exists.
	ErrTenantConflict  = errors.New("onboarding: tenant already exists")
	ErrInviteNotFound  = errors.New("onboarding: invite code not found")
	ErrAgencyInactive  = errors.New("onboarding: agency subscription is not active")
	ErrInviteExhausted = errors.New("onboarding: could not allocate a unique invite code")
	ErrUploadFailed    = errors.New("onboarding: asset upload failed")
)
