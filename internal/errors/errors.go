// Package errors defines the error taxonomy shared by the registry, resolver
// and persistence layers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents errors caused by the inbound message
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryConflict represents ownership conflicts in the registry
	CategoryConflict ErrorCategory = "conflict"
	// CategoryResolution represents market data resolution errors
	CategoryResolution ErrorCategory = "resolution"
	// CategoryPersistence represents snapshot store errors
	CategoryPersistence ErrorCategory = "persistence"
)

// Stable error codes
const (
	CodeInvalidAddress      = "INVALID_ADDRESS"
	CodeAlreadyTracked      = "ALREADY_TRACKED"
	CodeResolutionTransient = "RESOLUTION_TRANSIENT"
	CodeResolutionPermanent = "RESOLUTION_PERMANENT"
	CodePersistenceFailure  = "PERSISTENCE_FAILURE"
)

// TrackingError is an error with a category, stable code and transience flag.
// Transient errors are worth retrying; permanent ones are not.
type TrackingError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Transient bool
	Details   map[string]interface{}
	Cause     error
}

// Error implements the error interface
func (e *TrackingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *TrackingError) Unwrap() error {
	return e.Cause
}

// Is matches two TrackingErrors by code, so call sites can use errors.Is with
// a sentinel built by the constructors below.
func (e *TrackingError) Is(target error) bool {
	var other *TrackingError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *TrackingError {
	return &TrackingError{
		Category: CategoryUserInput,
		Code:     CodeInvalidAddress,
		Message:  fmt.Sprintf("not a valid token address: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewAlreadyTrackedError creates a registry ownership conflict error
func NewAlreadyTrackedError(address, ownerID string) *TrackingError {
	return &TrackingError{
		Category: CategoryConflict,
		Code:     CodeAlreadyTracked,
		Message:  fmt.Sprintf("address %s already tracked", address),
		Details: map[string]interface{}{
			"address": address,
			"ownerId": ownerID,
		},
	}
}

// NewTransientResolutionError creates a retryable resolution error
// (timeouts, connection failures, upstream 5xx).
func NewTransientResolutionError(service string, cause error) *TrackingError {
	return &TrackingError{
		Category:  CategoryResolution,
		Code:      CodeResolutionTransient,
		Message:   fmt.Sprintf("transient failure from %s", service),
		Transient: true,
		Cause:     cause,
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// NewPermanentResolutionError creates a non-retryable resolution error
// (the address does not resolve to any known token).
func NewPermanentResolutionError(service, address string) *TrackingError {
	return &TrackingError{
		Category: CategoryResolution,
		Code:     CodeResolutionPermanent,
		Message:  fmt.Sprintf("%s has no data for %s", service, address),
		Details: map[string]interface{}{
			"service": service,
			"address": address,
		},
	}
}

// NewPersistenceError creates a snapshot store error
func NewPersistenceError(operation string, cause error) *TrackingError {
	return &TrackingError{
		Category: CategoryPersistence,
		Code:     CodePersistenceFailure,
		Message:  fmt.Sprintf("snapshot %s failed", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Sentinels for errors.Is matching
var (
	ErrAlreadyTracked      = &TrackingError{Code: CodeAlreadyTracked}
	ErrInvalidAddress      = &TrackingError{Code: CodeInvalidAddress}
	ErrResolutionPermanent = &TrackingError{Code: CodeResolutionPermanent}
)

// IsTransient reports whether an error should trigger a retry. Network
// timeouts and connection errors count as transient even when they were not
// wrapped in a TrackingError.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var trackingErr *TrackingError
	if errors.As(err, &trackingErr) {
		return trackingErr.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// Code extracts the stable code from an error, or "" for uncategorized errors.
func Code(err error) string {
	var trackingErr *TrackingError
	if errors.As(err, &trackingErr) {
		return trackingErr.Code
	}
	return ""
}
