package api

// errors.go defines the request level error codes used by the handlers and middleware

import "fmt"

// APIError represents a structured error raised while decoding or admitting a request.
type APIError struct {
	// code is the API error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *APIError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *APIError) Code() ErrorCode { return e.code }
func (e *APIError) Unwrap() error   { return e.wrapped }

// ErrorCode is returned to clients in DetailedError.ErrorCode.
// Signing error codes (VALIDATION, NOT_FOUND, ...) share this namespace.
type ErrorCode string

const (
	// ErrCodeMalformedRequest is used when JSON parsing fails or a path parameter is not a valid id
	ErrCodeMalformedRequest ErrorCode = "MALFORMED_REQUEST"

	// ErrCodeRateLimitExceeded is used when the rate limit is exceeded
	// - this is only used in the middleware
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrCodeRequestTooLarge is used when the request body is too large
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"

	// ErrCodeInternal is used when an internal server error occurs
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// NewMalformedRequestError creates an error for malformed requests.
func NewMalformedRequestError(msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps an existing error as a malformed request error.
func WrapMalformedRequestError(err error, msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

// NewRateLimitError creates a rate limit exceeded error.
func NewRateLimitError(msg string) error {
	return &APIError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError creates a request too large error.
// Use this when the request body exceeds the maximum allowed size.
func NewRequestTooLargeError(msg string) error {
	return &APIError{code: ErrCodeRequestTooLarge, message: msg}
}

// NewInternalError creates an internal error for unexpected failures in the handlers.
func NewInternalError(msg string) error {
	return &APIError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &APIError{code: ErrCodeInternal, message: msg, wrapped: err}
}
