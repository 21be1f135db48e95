package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the refund workflow. Concrete errors wrap one of
// these so callers can branch with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("refund request not found")
	ErrDuplicateRequest = errors.New("an open refund already exists for this transaction")
	ErrInvalidState     = errors.New("transition not allowed from current status")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("this request was just updated, please refresh")
)

// ValidationError describes bad input rejected before any state change.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// DuplicateRequestError carries the open refund the caller should surface instead.
type DuplicateRequestError struct {
	TransactionID string
	ExistingID    string
}

func (e *DuplicateRequestError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("an open refund already exists for transaction %s", e.TransactionID)
	}
	return fmt.Sprintf("refund %s is already open for transaction %s", e.ExistingID, e.TransactionID)
}

func (e *DuplicateRequestError) Unwrap() error { return ErrDuplicateRequest }

// InvalidStateError is returned when the record is not in the status a transition requires.
type InvalidStateError struct {
	RefundID string
	Current  RefundStatus
	Action   Transition
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s refund %s in status %s", e.Action, e.RefundID, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ForbiddenError carries the role-specific message shown to the actor.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func NewForbiddenError(message string) error {
	return &ForbiddenError{Message: message}
}

// ConflictError reports a lost compare-and-swap race.
type ConflictError struct {
	RefundID        string
	ExpectedVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("refund %s changed since version %d: %s", e.RefundID, e.ExpectedVersion, ErrConflict.Error())
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Kind names the error kind of err for metrics and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}
