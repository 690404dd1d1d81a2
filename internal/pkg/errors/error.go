package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict: resource already exists")
	ErrInternal     = errors.New("internal server error")
	ErrBadRequest   = errors.New("bad request")

	// ErrVersionConflict signals an optimistic write lost to a concurrent
	// writer. Not an error to end callers: the operation is retried once
	// against the fresh row state.
	ErrVersionConflict = errors.New("row version conflict")

	// ErrSettlementInFlight signals another settlement attempt currently
	// holds the invoice lock.
	ErrSettlementInFlight = errors.New("settlement already in flight for invoice")

	// ErrNoPaymentMethod signals the account has no stored payment token.
	ErrNoPaymentMethod = errors.New("no payment method on file")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
