// Package httputil centralizes JSON response writing and domain error
// translation so every handler emits the same error envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "skyseal/pkg/domain-errors"
	"skyseal/pkg/platform/sentinel"
)

// Validatable lets request DTOs validate and parse themselves after decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes a JSON request body into T and runs its validation.
// On failure it writes the error response and returns ok=false; the handler
// just returns.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "request body decode failed", "error", err)
		WriteError(w, dErrors.New(dErrors.CodeMalformedPayload, "request body must be valid JSON"))
		return nil, false
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates an error into a JSON error envelope. Internal errors
// omit the description so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		code = dErrors.CodeUnavailable
	case errors.Is(err, sentinel.ErrNotFound):
		code = dErrors.CodeNotFound
	case errors.Is(err, sentinel.ErrConflict):
		code = dErrors.CodeConflict
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if de, ok := err.(*dErrors.Error); ok {
			body["error_description"] = de.Message
		}
	}
	WriteJSON(w, toHTTPStatus(code), body)
}

func toHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeMalformedPayload:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
