package domain

import (
	"errors"
	"fmt"
)

// Error kinds allow callers to classify failures with errors.Is without
// depending on the concrete error payload.
var (
	ErrNotFoundKind          = errors.New("not found")
	ErrNotAvailableKind      = errors.New("not available")
	ErrDuplicateClaimKind    = errors.New("duplicate claim")
	ErrInvalidTransitionKind = errors.New("invalid transition")
	ErrForbiddenKind         = errors.New("forbidden")
	ErrInvalidInputKind      = errors.New("invalid input")
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFoundKind.
func (e ErrNotFound) Is(target error) bool { return target == ErrNotFoundKind }

// ErrNotAvailable is returned when a claim targets a product that is not AVAILABLE.
type ErrNotAvailable struct {
	ProductID string
	Status    ProductStatus
}

func (e ErrNotAvailable) Error() string {
	return fmt.Sprintf("product %s is not available for claiming (status %s)", e.ProductID, e.Status)
}

// Is matches ErrNotAvailableKind.
func (e ErrNotAvailable) Is(target error) bool { return target == ErrNotAvailableKind }

// ErrDuplicateClaim is returned when the claimer already holds a live claim on the product.
type ErrDuplicateClaim struct {
	ProductID string
	ClaimerID string
}

func (e ErrDuplicateClaim) Error() string {
	return fmt.Sprintf("user %s already claimed product %s", e.ClaimerID, e.ProductID)
}

// Is matches ErrDuplicateClaimKind.
func (e ErrDuplicateClaim) Is(target error) bool { return target == ErrDuplicateClaimKind }

// ErrInvalidTransition is returned when a claim cannot move from its current status.
type ErrInvalidTransition struct {
	ClaimID string
	From    ClaimStatus
	To      ClaimStatus
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("claim %s cannot move from %s to %s", e.ClaimID, e.From, e.To)
}

// Is matches ErrInvalidTransitionKind.
func (e ErrInvalidTransition) Is(target error) bool { return target == ErrInvalidTransitionKind }

// ErrForbidden is returned when the acting user may not perform the action.
type ErrForbidden struct {
	Actor  string
	Action string
}

func (e ErrForbidden) Error() string {
	if e.Actor == "" {
		return fmt.Sprintf("%s requires an acting user", e.Action)
	}
	return fmt.Sprintf("user %s may not %s", e.Actor, e.Action)
}

// Is matches ErrForbiddenKind.
func (e ErrForbidden) Is(target error) bool { return target == ErrForbiddenKind }

// ErrInvalidInput is returned when a request is missing required fields.
type ErrInvalidInput struct {
	Field  string
	Reason string
}

func (e ErrInvalidInput) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidInputKind.
func (e ErrInvalidInput) Is(target error) bool { return target == ErrInvalidInputKind }
