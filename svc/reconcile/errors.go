package reconcile

import "errors"

var (
	ErrTenantNotFound   = errors.New("reconcile: tenant not found")
	ErrCustomerConflict = errors.New("reconcile: payment customer belongs to another tenant")
	ErrInFlight         = errors.New("reconcile: event is already being processed")
	ErrStorage          = errors.New("reconcile: storage failure")
)
