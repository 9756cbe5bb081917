package escrow

import "errors"

var (
	ErrNotInitialized     = errors.New("vault is not initialized")
	ErrAlreadyInitialized = errors.New("vault is already initialized")
	ErrNotAuthorized      = errors.New("caller is not authorized")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrBookingNotPending  = errors.New("booking is not pending")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrReclaimTooEarly    = errors.New("reclaim timeout has not elapsed")
)
