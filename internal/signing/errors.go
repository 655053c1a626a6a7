package signing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error represents a structured error from the signing package.
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	// ErrCodeValidation indicates a missing or invalid field value. Carries per-field detail.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates an unknown token, envelope, recipient or field.
	// Callers must not be able to tell which one did not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAlreadySigned indicates a re-submission by a recipient who has already signed, or for a field that is already inserted.
	ErrCodeAlreadySigned ErrorCode = "ALREADY_SIGNED"

	// ErrCodeMalformedDocument indicates that the stored PDF bytes could not be read or modified.
	ErrCodeMalformedDocument ErrorCode = "MALFORMED_DOCUMENT"

	// ErrCodeInvalidState indicates that the envelope or recipient is not in a state that allows the operation.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeNotRecipientsTurn indicates that a sequential envelope is waiting for an earlier recipient.
	ErrCodeNotRecipientsTurn ErrorCode = "NOT_RECIPIENTS_TURN"

	// ErrCodeConflict indicates a uniqueness violation or a concurrent update.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeInternal indicates unexpected failures (storage, encoding).
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// FieldError describes why a single field was rejected.
type FieldError struct {
	FieldID  uuid.UUID `json:"fieldId"`
	Property string    `json:"property,omitempty"`
	Message  string    `json:"message"`
}

// SigningError represents a structured error from the signing package.
type SigningError struct {
	// code is the error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error

	// fields holds per-field validation detail (validation errors only)
	fields []FieldError
}

func (e *SigningError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *SigningError) Code() ErrorCode           { return e.code }
func (e *SigningError) Unwrap() error             { return e.wrapped }
func (e *SigningError) Message() string           { return e.message }
func (e *SigningError) FieldErrors() []FieldError { return e.fields }

// NewValidationError creates a validation error with optional per-field detail.
func NewValidationError(msg string, fields ...FieldError) error {
	return &SigningError{code: ErrCodeValidation, message: msg, fields: fields}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(msg string) error {
	return &SigningError{code: ErrCodeNotFound, message: msg}
}

// NewAlreadySignedError creates an already signed error.
func NewAlreadySignedError(msg string) error {
	return &SigningError{code: ErrCodeAlreadySigned, message: msg}
}

// WrapMalformedDocumentError wraps a PDF processing failure.
func WrapMalformedDocumentError(err error, msg string) error {
	return &SigningError{code: ErrCodeMalformedDocument, message: msg, wrapped: err}
}

// NewInvalidStateError creates an invalid state error.
func NewInvalidStateError(msg string) error {
	return &SigningError{code: ErrCodeInvalidState, message: msg}
}

// NewNotRecipientsTurnError creates an error for a recipient signing out of order.
func NewNotRecipientsTurnError(msg string) error {
	return &SigningError{code: ErrCodeNotRecipientsTurn, message: msg}
}

// WrapConflictError wraps a uniqueness or version conflict.
func WrapConflictError(err error, msg string) error {
	return &SigningError{code: ErrCodeConflict, message: msg, wrapped: err}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &SigningError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// CodeOf returns the code of the first SigningError in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var signingErr *SigningError
	if errors.As(err, &signingErr) {
		return signingErr.code
	}
	return ErrCodeInternal
}

// storage errors returned by Store implementations
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrVersionConflict = errors.New("document data was modified concurrently")
)

// mapStoreError converts store sentinels into signing errors. Other errors become internal errors.
func mapStoreError(err error, msg string) error {
	var signingErr *SigningError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &signingErr):
		return err
	case errors.Is(err, ErrRecordNotFound):
		return NewNotFoundError(msg)
	case errors.Is(err, ErrDuplicateRecord), errors.Is(err, ErrVersionConflict):
		return WrapConflictError(err, msg)
	default:
		return WrapInternalError(err, msg)
	}
}
