package domain

import "errors"

// Failure taxonomy shared by the price resolver and the portfolio valuator.
// All of them are recoverable by the caller.
var (
	// ErrNotFound means the upstream answered but had no usable data.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable covers non-success HTTP statuses, transport failures and malformed payloads.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited means the upstream signalled quota exhaustion.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidQuantity rejects non-positive holding quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInvalidIdentifier rejects empty queries and malformed addresses.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrHoldingNotFound is returned when a mutation targets an unknown holding id.
	ErrHoldingNotFound = errors.New("holding not found")
)
