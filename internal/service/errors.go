package service

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidPassword          = errors.New("invalid password")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrDuplicateEnrollment      = errors.New("affiliate already enrolled")
	ErrAffiliateNotEnrolled     = errors.New("affiliate not enrolled")
	ErrAffiliateSuspended       = errors.New("affiliate suspended")
	ErrAffiliateStatusInvalid   = errors.New("affiliate status invalid")
	ErrAffiliateCodeExhausted   = errors.New("affiliate code generation exhausted")
	ErrUnknownAffiliateCode     = errors.New("unknown affiliate code")
	ErrDuplicateReferral        = errors.New("referral already recorded")
	ErrSelfReferral             = errors.New("self referral not allowed")
	ErrInvalidEmail             = errors.New("invalid payout email")
	ErrInsufficientBalance      = errors.New("insufficient balance for payout")
	ErrMissingPayoutDestination = errors.New("missing payout destination")
	ErrPayoutAlreadyPending     = errors.New("payout already pending")
	ErrPayoutNotFound           = errors.New("payout not found")
	ErrPayoutStatusInvalid      = errors.New("payout status transition invalid")
	ErrEarningNotFound          = errors.New("earning not found")
	ErrEarningNotReversible     = errors.New("earning not reversible")
	ErrLedgerDivergence         = errors.New("affiliate ledger divergence")
	ErrEventInvalid             = errors.New("upstream event invalid")
)
