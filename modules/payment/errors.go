package payment

import "errors"

// Sentinel errors returned by the intent service. The messages are part of
// the HTTP contract: handlers surface them verbatim in 400 responses.
var (
	ErrInvalidAmount = errors.New("Amount is required and must be a positive number")
	ErrNotConfigured = errors.New("API key is not configured")
	ErrInvalidKey    = errors.New("Invalid API key")
)

// ProviderError carries a payment provider failure that is neither a
// credential problem nor a caller mistake, e.g. a declined card.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return e.Message }
