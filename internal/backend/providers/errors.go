package providers

import (
	"errors"
	"fmt"

	"hubconnect/internal/backend/models"
)

// ExchangeError is returned when the provider's token endpoint refuses an
// authorization code. Reason carries the provider's error description.
type ExchangeError struct {
	Provider models.ProviderKind
	Reason   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s token exchange failed: %s", e.Provider.Title(), e.Reason)
}

// IdentityFetchError is returned when the provider's identity response is
// unusable: a non-2xx status or a body missing required fields.
type IdentityFetchError struct {
	Provider models.ProviderKind
	Reason   string
}

func (e *IdentityFetchError) Error() string {
	return fmt.Sprintf("%s identity lookup failed: %s", e.Provider.Title(), e.Reason)
}

// ProviderUnavailableError wraps network failures and timeouts. Callers may retry.
type ProviderUnavailableError struct {
	Provider models.ProviderKind
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("%s is unavailable: %v", e.Provider.Title(), e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func (e *ProviderUnavailableError) Temporary() bool { return true }

// IsUnavailable reports whether err is, or wraps, a ProviderUnavailableError.
func IsUnavailable(err error) bool {
	var target *ProviderUnavailableError
	return errors.As(err, &target)
}
