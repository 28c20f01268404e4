// Package errors provides the stable error taxonomy shared by the
// request engine and the API surface.
package errors

import (
	"errors"
	"fmt"
)

// Stable error keys. Server-supplied keys from the appliance's error
// envelope pass through unchanged alongside these.
const (
	KeyNotConfigured = "not_configured"
	KeyTimeout       = "timeout"
	KeyCertError     = "cert_error"
	KeyNetworkError  = "network_error"
	KeyAuthFailed    = "auth_failed"
	KeyParseError    = "parse_error"
	KeyNotFound      = "not_found"
	KeyInternal      = "internal_error"
)

// CertErrorHint is the remediation guidance attached to certificate
// failures. Self-hosted appliances commonly run with self-signed
// certificates that the host trust store does not know about.
const CertErrorHint = "The appliance's TLS certificate could not be verified. " +
	"If it uses a self-signed certificate, add it to the system trust store " +
	"or connect over plain HTTP on the local network."

// APIError is the failure half of a request outcome. Key is stable for
// programmatic handling, Message is displayable, Hint is optional
// remediation text, and Status carries the HTTP status of the failed
// call (0 for transport-level failures).
type APIError struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Key, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotConfigured creates the error returned when a client has no
// base URL set.
func NewNotConfigured() *APIError {
	return &APIError{
		Key:     KeyNotConfigured,
		Message: "no appliance URL configured for this instance",
		Status:  0,
	}
}

// NewTimeout creates a timeout error for the named operation.
func NewTimeout(operation string) *APIError {
	return &APIError{
		Key:     KeyTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Status:  0,
	}
}

// NewCertError creates a certificate failure with remediation guidance.
func NewCertError(err error) *APIError {
	return &APIError{
		Key:     KeyCertError,
		Message: "TLS certificate verification failed",
		Hint:    CertErrorHint,
		Status:  0,
		Err:     err,
	}
}

// NewNetworkError creates a generic transport failure.
func NewNetworkError(err error) *APIError {
	return &APIError{
		Key:     KeyNetworkError,
		Message: "could not reach the appliance",
		Status:  0,
		Err:     err,
	}
}

// NewAuthFailed creates an authentication failure with the given HTTP
// status (401 or 403).
func NewAuthFailed(status int) *APIError {
	return &APIError{
		Key:     KeyAuthFailed,
		Message: "authentication with the appliance failed",
		Status:  status,
	}
}

// NewParseError creates the error for a 2xx response whose body was not
// valid JSON.
func NewParseError(err error) *APIError {
	return &APIError{
		Key:     KeyParseError,
		Message: "the appliance returned an unparsable response",
		Status:  0,
		Err:     err,
	}
}

// NewNotFound creates a not-found error for the named resource.
func NewNotFound(resource, identifier string) *APIError {
	return &APIError{
		Key:     KeyNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Hint:    identifier,
		Status:  404,
	}
}

// NewInternal wraps an unexpected fault as an internal error.
func NewInternal(message string, err error) *APIError {
	return &APIError{
		Key:     KeyInternal,
		Message: message,
		Status:  0,
		Err:     err,
	}
}

// NewServerError builds an error from the appliance's structured error
// envelope, preserving its key verbatim. An empty key falls back to a
// status-derived generic.
func NewServerError(key, message, hint string, status int) *APIError {
	if key == "" {
		key = KeyInternal
	}
	if message == "" {
		message = fmt.Sprintf("appliance returned HTTP %d", status)
	}
	return &APIError{
		Key:     key,
		Message: message,
		Hint:    hint,
		Status:  status,
	}
}

// AsAPIError extracts an APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HasKey reports whether the error carries the given taxonomy key.
func HasKey(err error, key string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Key == key
}

// IsAuthFailed checks for an authentication failure.
func IsAuthFailed(err error) bool { return HasKey(err, KeyAuthFailed) }

// IsTimeout checks for a timeout.
func IsTimeout(err error) bool { return HasKey(err, KeyTimeout) }

// IsNotFound checks for a not-found error.
func IsNotFound(err error) bool { return HasKey(err, KeyNotFound) }

// IsNotConfigured checks for a missing-configuration error.
func IsNotConfigured(err error) bool { return HasKey(err, KeyNotConfigured) }
