package api

// error_response.go implements the error response format of the signing API
// it includes functions to map lower level errors to the response returned to the client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/information-sharing-networks/esign-demo/internal/logger"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// genericFailureMessage is the only detail clients see for malformed documents and internal errors.
const genericFailureMessage = "could not complete signing, please retry"

// ErrorResponse is the body of every error response
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A long description corresponding to the HTTP status code with additional information
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The request id, quote this when reporting a problem
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	// The DateTime corresponding to the error occurring
	ErrorDateTime string `json:"errorDateTime"`

	// An array of errors providing more detail about the root cause
	Errors []DetailedError `json:"errors"`
}

// DetailedError represents a detailed error in the error response.
// Validation errors produce one DetailedError per rejected field.
type DetailedError struct {
	ErrorCode        ErrorCode `json:"errorCode"`
	FieldID          string    `json:"fieldId,omitempty"`
	Property         string    `json:"property,omitempty"`
	ErrorCodeText    string    `json:"errorCodeText"`
	ErrorCodeMessage string    `json:"errorCodeMessage"`
}

// MapErrorToResponse maps api.APIError, signing.SigningError or generic errors to an ErrorResponse.
//
// Malformed documents and internal errors are reported with a generic message; the full error is logged server-side.
// The mapping also establishes the appropriate HTTP status code based on the error type.
//
// Call this function to set up the error response before sending it to the client (using RespondWithErrorResponse).
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return errorResponseFromAPI(apiErr, r, requestID)
	}

	var signingErr *signing.SigningError
	if errors.As(err, &signingErr) {
		return errorResponseFromSigning(signingErr, r, requestID)
	}

	// the body was cut off by http.MaxBytesReader while a handler was decoding it
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errorResponseFromAPI(&APIError{
			code:    ErrCodeRequestTooLarge,
			message: fmt.Sprintf("request body exceeds maximum allowed size (%d bytes)", maxBytesErr.Limit),
		}, r, requestID)
	}

	// fallback - this is not expected - if it does happen, return an internal error response and log the unmapped error
	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, http.StatusInternalServerError, "Internal Error", []DetailedError{
		{
			ErrorCode:        ErrCodeInternal,
			ErrorCodeText:    "Internal Error",
			ErrorCodeMessage: genericFailureMessage,
		},
	})
}

func newErrorResponse(r *http.Request, requestID string, statusCode int, message string, details []DetailedError) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   statusCode,
		StatusCodeText:               http.StatusText(statusCode),
		StatusCodeMessage:            message,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors:                       details,
	}
}

// errorResponseFromAPI maps api.APIError to error responses
func errorResponseFromAPI(err *APIError, r *http.Request, requestID string) *ErrorResponse {
	var statusCode int
	var errorCodeText string
	message := err.Error()

	switch err.Code() {
	case ErrCodeMalformedRequest:
		statusCode = http.StatusBadRequest
		errorCodeText = "Malformed request"
	case ErrCodeRateLimitExceeded:
		statusCode = http.StatusTooManyRequests
		errorCodeText = "Rate limit exceeded"
	case ErrCodeRequestTooLarge:
		statusCode = http.StatusRequestEntityTooLarge
		errorCodeText = "Request too large"
	default:
		statusCode = http.StatusInternalServerError
		errorCodeText = "Internal Error"
		message = genericFailureMessage
	}

	return newErrorResponse(r, requestID, statusCode, errorCodeText, []DetailedError{
		{
			ErrorCode:        err.Code(),
			ErrorCodeText:    errorCodeText,
			ErrorCodeMessage: message,
		},
	})
}

// errorResponseFromSigning maps signing.SigningError to error responses.
// Only the error message is returned (never the wrapped error) and NOT_FOUND
// always uses the same text so callers cannot probe for valid ids.
func errorResponseFromSigning(err *signing.SigningError, r *http.Request, requestID string) *ErrorResponse {
	code := ErrorCode(err.Code())

	switch err.Code() {
	case signing.ErrCodeValidation:
		details := make([]DetailedError, 0, len(err.FieldErrors()))
		for _, fe := range err.FieldErrors() {
			details = append(details, DetailedError{
				ErrorCode:        code,
				FieldID:          fe.FieldID.String(),
				Property:         fe.Property,
				ErrorCodeText:    "Invalid field value",
				ErrorCodeMessage: fe.Message,
			})
		}
		if len(details) == 0 {
			details = append(details, DetailedError{
				ErrorCode:        code,
				ErrorCodeText:    "Invalid request",
				ErrorCodeMessage: err.Message(),
			})
		}
		return newErrorResponse(r, requestID, http.StatusBadRequest, err.Message(), details)

	case signing.ErrCodeNotFound:
		return newErrorResponse(r, requestID, http.StatusNotFound, "Not found", []DetailedError{
			{
				ErrorCode:        code,
				ErrorCodeText:    "Not found",
				ErrorCodeMessage: "the requested resource does not exist or you do not have access to it",
			},
		})

	case signing.ErrCodeAlreadySigned, signing.ErrCodeInvalidState, signing.ErrCodeNotRecipientsTurn, signing.ErrCodeConflict:
		var errorCodeText string
		switch err.Code() {
		case signing.ErrCodeAlreadySigned:
			errorCodeText = "Already signed"
		case signing.ErrCodeNotRecipientsTurn:
			errorCodeText = "Waiting for another recipient"
		case signing.ErrCodeConflict:
			errorCodeText = "Conflict"
		default:
			errorCodeText = "Invalid state"
		}
		return newErrorResponse(r, requestID, http.StatusConflict, errorCodeText, []DetailedError{
			{
				ErrorCode:        code,
				ErrorCodeText:    errorCodeText,
				ErrorCodeMessage: err.Message(),
			},
		})

	default:
		// MALFORMED_DOCUMENT and INTERNAL
		return newErrorResponse(r, requestID, http.StatusInternalServerError, "Internal Error", []DetailedError{
			{
				ErrorCode:        ErrCodeInternal,
				ErrorCodeText:    "Internal Error",
				ErrorCodeMessage: genericFailureMessage,
			},
		})
	}
}
