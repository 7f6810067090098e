// Package domain holds the shared types used across modules: the error
// taxonomy and decimal money helpers. It has no infrastructure
// dependencies so every module can import it.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates an account, underlying, lot or signal that does
// not exist (or is not owned by the caller). Detected before any mutation.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates malformed or out-of-range input, rejected
// before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InsufficientLotError indicates a sell or assignment quantity exceeding
// the total remaining shares across open lots. Short selling is not
// supported, so this is a caller error, not an invariant violation.
type InsufficientLotError struct {
	Symbol    string
	Requested int64
	Available int64
}

func (e *InsufficientLotError) Error() string {
	return fmt.Sprintf("insufficient lots for %s: requested %d shares, %d available",
		e.Symbol, e.Requested, e.Available)
}

// StaleSignalError indicates an attempt to resolve a reinvestment signal
// that is no longer PENDING. Terminal signals never reopen.
type StaleSignalError struct {
	SignalID string
	Status   string
}

func (e *StaleSignalError) Error() string {
	return fmt.Sprintf("signal %s already resolved with status %s", e.SignalID, e.Status)
}

// InvariantViolation indicates an internal consistency check failed, e.g.
// an assignment exceeding the open contract count. It points at a bug in
// the caller's event sequencing and must abort the operation loudly;
// it is never clamped or swallowed.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

// ProviderError indicates a market-data fetch failure for one symbol.
// Non-fatal: the symbol's price stays unchanged and other symbols proceed.
type ProviderError struct {
	Symbol string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("quote fetch failed for %s: %v", e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
