package api

// responses.go provides helper functions for sending HTTP responses from the handlers.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/information-sharing-networks/esign-demo/internal/logger"
)

// RespondWithErrorResponse sends an error response as a JSON payload.
//
// It logs the full error details server-side and sends a sanitized response to the client.
// Server errors are logged at Error level, client errors at Warn.
func RespondWithErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse := MapErrorToResponse(err, r)

	reqLogger := logger.ContextRequestLogger(r.Context())
	level := slog.LevelWarn
	if errorResponse.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	reqLogger.Log(r.Context(), level, "Request failed",
		slog.String("error", err.Error()),
		slog.Int("status_code", errorResponse.StatusCode),
		slog.String("error_code_text", errorResponse.StatusCodeMessage),
		slog.String("request_id", errorResponse.ProviderCorrelationReference),
	)

	RespondWithJSONPayload(w, errorResponse.StatusCode, errorResponse)
}

// RespondWithJSONPayload sends a JSON response with the given status code
func RespondWithJSONPayload(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// If encoding fails, log it but don't try to send another response
			// (headers are already written)
			slog.Error("Failed to encode JSON response",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RespondWithStatusCodeOnly sends a response with only a status code (no body)
func RespondWithStatusCodeOnly(w http.ResponseWriter, statusCode int) {
	w.WriteHeader(statusCode)
}

// RespondWithPDF sends PDF bytes as the response body. filename is used for the Content-Disposition header.
func RespondWithPDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write PDF response",
			slog.String("error", err.Error()),
		)
	}
}
