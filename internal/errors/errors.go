package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a GhostWrite error code.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"        // 400
	ErrUnauthenticated       ErrorCode = "UNAUTHENTICATED"        // 401
	ErrInsufficientCredits   ErrorCode = "INSUFFICIENT_CREDITS"   // 402
	ErrNotFound              ErrorCode = "NOT_FOUND"              // 404
	ErrCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE" // 409
	ErrInternal              ErrorCode = "INTERNAL"               // 500
	ErrServiceUnavailable    ErrorCode = "SERVICE_UNAVAILABLE"    // 503
	ErrNetworkOffline        ErrorCode = "NETWORK_OFFLINE"        // 503, transient
)

// GhostError represents a structured error with code, status, and details.
type GhostError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *GhostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *GhostError) Unwrap() error {
	return e.cause
}

// Transient reports whether retrying the same request later may succeed.
func (e *GhostError) Transient() bool {
	return e.Code == ErrNetworkOffline || e.Code == ErrServiceUnavailable
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GhostError {
	return &GhostError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthenticated creates a 401 error for a missing or rejected API key.
func NewUnauthenticated(msg string) *GhostError {
	if msg == "" {
		msg = "invalid API key"
	}
	return &GhostError{
		Code:    ErrUnauthenticated,
		Status:  401,
		Message: msg,
	}
}

// NewInsufficientCredits creates a 402 error when the balance cannot cover a request.
func NewInsufficientCredits(remaining int) *GhostError {
	return &GhostError{
		Code:    ErrInsufficientCredits,
		Status:  402,
		Message: "No credits available. Please purchase credits to use AI features.",
		Details: map[string]any{"credits_remaining": remaining},
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(identifier string) *GhostError {
	return &GhostError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCapabilityUnavailable creates a 409 error when a local capability never loaded.
func NewCapabilityUnavailable(capability, reason string) *GhostError {
	msg := fmt.Sprintf("%s is not available", capability)
	if reason != "" {
		msg = fmt.Sprintf("%s is not available: %s", capability, reason)
	}
	return &GhostError{
		Code:    ErrCapabilityUnavailable,
		Status:  409,
		Message: msg,
		Details: map[string]any{"capability": capability},
	}
}

// NewServiceUnavailable creates a 503 error when every provider failed or the
// remote service answered with something unusable.
func NewServiceUnavailable(msg string, cause error) *GhostError {
	if msg == "" {
		msg = "AI service temporarily unavailable"
	}
	return &GhostError{
		Code:    ErrServiceUnavailable,
		Status:  503,
		Message: msg,
		cause:   cause,
	}
}

// NewNetworkOffline creates a transient error for local connectivity problems.
func NewNetworkOffline(cause error) *GhostError {
	return &GhostError{
		Code:    ErrNetworkOffline,
		Status:  503,
		Message: "No internet connection",
		cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *GhostError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &GhostError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a GhostError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GhostError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}

// As returns the GhostError carried by err, converting anything else to INTERNAL.
func As(err error) *GhostError {
	if err == nil {
		return nil
	}
	var gErr *GhostError
	if stderrors.As(err, &gErr) {
		return gErr
	}
	return NewInternal(err)
}
