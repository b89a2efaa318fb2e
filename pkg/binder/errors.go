package binder

import "errors"

var (
	// ErrBinderNotApplicable tells the caller to try the next binder.
	ErrBinderNotApplicable = errors.New("binder not applicable to request")
	ErrFailedToParseJSON   = errors.New("failed to parse JSON request body")
	ErrFailedToParseForm   = errors.New("failed to parse form data")
	ErrBodyTooLarge        = errors.New("request body too large")
	ErrInvalidTarget       = errors.New("bind target must be a non-nil pointer to struct")
)
