// Package gwerrors defines the structured error type shared across the
// gateway core.
package gwerrors

import "fmt"

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeRequestTooLarge    Code = "REQUEST_TOO_LARGE"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeAllKeysRateLimited Code = "ALL_KEYS_RATE_LIMITED"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeUpstreamError      Code = "UPSTREAM_ERROR"
	CodeUpstreamTimeout    Code = "UPSTREAM_TIMEOUT"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNoAvailableKey     Code = "NO_AVAILABLE_KEY"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is the structured error carried across every exit path of the
// pipeline. Code drives HTTP-status mapping and retry/rotation decisions;
// Retryable and KeepReservation are read by the retry policy and per-key
// limiter respectively.
type Error struct {
	Code            Code   `json:"code"`
	Message         string `json:"message"`
	HTTPStatus      int    `json:"http_status,omitempty"`
	Retryable       bool   `json:"retryable"`
	KeepReservation bool   `json:"-"`
	Provider        string `json:"provider,omitempty"`
	RetryAfter      int    `json:"retry_after_seconds,omitempty"`
	Details         []FieldDetail `json:"details,omitempty"`
	Cause           error  `json:"-"`
}

// FieldDetail describes a single field-level validation failure.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a bare structured error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithKeepReservation(keep bool) *Error {
	e.KeepReservation = keep
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

func (e *Error) WithDetails(details []FieldDetail) *Error {
	e.Details = details
	return e
}

// IsRetryable reports whether err carries Retryable=true.
func IsRetryable(err error) bool {
	var e *Error
	if As(err, &e) {
		return e.Retryable
	}
	return false
}

// ShouldKeepReservation reports whether a per-key reservation must be kept
// rather than released on this failure (upstream quota-exhausted case).
func ShouldKeepReservation(err error) bool {
	var e *Error
	if As(err, &e) {
		return e.KeepReservation
	}
	return false
}

// As walks err's Unwrap chain and, at the first *Error it finds, stores it
// in target and reports true. Only single-error Unwrap() is followed.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
