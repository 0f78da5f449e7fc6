package services

import "errors"

var (
	ErrInvalidPersona    = errors.New("unknown persona")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrFreeQuotaExceeded = errors.New("free message quota exceeded")
	ErrNoCredits         = errors.New("out of credits")
	ErrCompletionFailed  = errors.New("completion service error")
	ErrBillingDisabled   = errors.New("billing not configured")
	ErrNoSubscription    = errors.New("no subscription on file")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrBadCredentials    = errors.New("invalid credentials")
)
