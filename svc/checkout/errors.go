package checkout

import "errors"

var (
	ErrUnknownPlan    = errors.New("checkout: unknown plan")
	ErrNoCustomer     = errors.New("checkout: tenant has no billing customer yet")
	ErrCheckoutFailed = errors.New("checkout: failed to start checkout")
	ErrPortalFailed   = errors.New("checkout: failed to open billing portal")
)
