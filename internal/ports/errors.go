package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Exchange Specific Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")
	ErrMalformedPayload    = errors.New("malformed payload from the exchange")
	ErrStreamClosed        = errors.New("stream is permanently closed")

	// Series Specific Errors
	ErrSeriesConflict = errors.New("series mutation violates ordering invariants")
	ErrSeriesEmpty    = errors.New("series is empty")
)
