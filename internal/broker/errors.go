package broker

import "errors"

// Sentinel errors for callers that need to distinguish failure classes.
// Everything else surfaces as a wrapped transport or bridge error.
var (
	// ErrAccountUnavailable means the account snapshot could not be fetched.
	// The engine treats this as fatal for the cycle.
	ErrAccountUnavailable = errors.New("account state unavailable")

	// ErrOrderRejected means the venue refused an order (margin, volume,
	// market closed). The order did not execute.
	ErrOrderRejected = errors.New("order rejected")

	// ErrPositionNotFound means the referenced position is not known, either
	// because it was already closed or the ticket is stale.
	ErrPositionNotFound = errors.New("position not found")
)
