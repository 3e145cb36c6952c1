package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "invalid_credentials", "message": "invalid email or password"}
//
// The frontend always knows what fields to expect, regardless of whether
// it's a 400, 401, 403 or 500.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/learnquest/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "forbidden")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE writing the body — once
// Encode calls w.Write(), the headers are sent and further changes are
// silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out — we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends it.
//
// This is the single place where the apperror taxonomy meets HTTP. The
// service layer returns sentinels; here they become status codes:
//
//	ErrValidation          → 400  (user-correctable input)
//	ErrInvalidCode         → 400  (reset code missing/expired/wrong — one bucket)
//	ErrInvalidCredentials  → 401  (login failed — one bucket)
//	ErrUnauthorized        → 401
//	ErrForbidden           → 403
//	ErrNotFound            → 404
//	ErrConflict            → 409  (duplicate email)
//	ErrDelivery            → 502  (mail relay failed — upstream, not the caller)
//
// errors.Is walks the whole wrap chain, so it doesn't matter how many
// fmt.Errorf("%w") layers the service added on the way up.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrInvalidCode):
			status = http.StatusBadRequest
			errorType = "invalid_code"
		case errors.Is(err, apperror.ErrInvalidCredentials):
			status = http.StatusUnauthorized
			errorType = "invalid_credentials"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "duplicate_email"
		case errors.Is(err, apperror.ErrDelivery):
			status = http.StatusBadGateway
			errorType = "delivery_failure"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error — generic 500. NEVER expose internal error details:
	// the raw message might contain SQL fragments or file paths.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
