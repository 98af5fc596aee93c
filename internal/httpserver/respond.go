package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agenr/gateway/internal/apperr"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, errStr string, message string) {
	Respond(w, status, ErrorResponse{
		Error:   errStr,
		Message: message,
	})
}

// RespondAppError maps a typed apperr.Error (or any error) to its HTTP status
// and writes the envelope. Transient causes are logged with detail; the
// response body never leaks the wrapped cause.
func RespondAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusCode(kind)

	message := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
		if ae.Wrapped != nil && logger != nil {
			logger.Error("request failed", "kind", kind, "message", ae.Message, "cause", ae.Wrapped)
		}
	}

	RespondError(w, status, string(kind), message)
}
