package domain

import "errors"

var (
	ErrDescriptorCreation = errors.New("payment descriptor creation failed")
	ErrRateFetch          = errors.New("exchange rate fetch failed")
	ErrPoll               = errors.New("purchase status poll failed")
	ErrSessionTimedOut    = errors.New("payment session timed out")

	ErrPricingLocked      = errors.New("fiat amount is not editable")
	ErrAmountBelowMinimum = errors.New("fiat amount below minimum")
	ErrSessionClosed      = errors.New("payment session closed")
	ErrSessionNotFound    = errors.New("payment session not found")
	ErrPaymentInProgress  = errors.New("payment descriptor creation in progress")
	ErrUnknownPackage     = errors.New("unknown package")
)
