// Package api implements the HTTP surface of the ingest service: the event
// intake endpoint the commerce platform posts to, the Stripe webhook
// receiver, and the trigger catalog read endpoint backing the rule
// configuration UI.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"relaypoint/internal/types"
)

// APIResponse is the envelope for successful responses.
type APIResponse struct {
	Data any `json:"data,omitempty"`
}

// APIErrorResponse is the envelope for error responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the structured error information returned to clients.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id"`
}

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes an error response. AppErrors map to their HTTP status with a
// structured body; anything else becomes an opaque 500. Wrapped internal
// errors are never exposed to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	traceID := types.GetTraceID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:    string(appErr.Code),
				Message: appErr.Message,
				Details: appErr.Details,
				TraceID: traceID,
			},
		})
		return
	}

	JSON(w, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "an unexpected error occurred",
			TraceID: traceID,
		},
	})
}

// DecodeJSON reads the request body into dst with a size cap and strict
// field checking. Returns a validation AppError on any decode failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return types.NewAppError(types.ErrCodeValidationInvalidEvent,
			"request body must contain a single JSON object", nil)
	}
	return nil
}

func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(types.ErrCodeValidationInvalidEvent,
			"request body too large", err)
	}
	if errors.Is(err, io.EOF) {
		return types.NewAppError(types.ErrCodeValidationInvalidEvent,
			"request body must not be empty", err)
	}
	return types.NewAppError(types.ErrCodeValidationInvalidEvent,
		"invalid JSON in request body", err)
}
