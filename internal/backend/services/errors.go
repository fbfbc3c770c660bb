package services

import (
	"fmt"

	"hubconnect/internal/backend/models"
)

// InvalidTokenError is returned when a provider rejects a supplied token.
type InvalidTokenError struct {
	Provider models.ProviderKind
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("the %s token is invalid or expired", e.Provider.Title())
}

// IdentityMismatchError is returned when a token belongs to a different
// account than the one the caller claimed.
type IdentityMismatchError struct {
	Provider models.ProviderKind
	Field    string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("the %s token does not belong to the given %s", e.Provider.Title(), e.Field)
}

// NotFoundError hides both missing resources and resources owned by others.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError is returned when the acting user cannot be resolved.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
