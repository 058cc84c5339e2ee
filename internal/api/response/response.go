package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/lesionscan/internal/analysis"
	"github.com/kiranshivaraju/lesionscan/internal/store"
	"github.com/kiranshivaraju/lesionscan/internal/upload"
)

const internalErrorMessage = "Internal Server Error"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// Accepted reports work that continues after the response, with a human-readable message.
func Accepted(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: data, Message: message})
}

// Error writes the error envelope. stack is omitted when empty.
func Error(w http.ResponseWriter, status int, message string, details any, stack string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Message: message,
		Details: details,
		Stack:   stack,
	}})
}

// FromError maps err onto an HTTP status: validation failures are 400, unknown
// jobs are 404, everything else is a 500 with a generic message. With debug set
// the current goroutine stack is included.
func FromError(w http.ResponseWriter, r *http.Request, err error, debugMode bool) {
	status, message := classify(err)

	var stack string
	if debugMode {
		stack = string(debug.Stack())
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	Error(w, status, message, nil, stack)
}

func classify(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, upload.ErrMissingFile),
		errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, upload.ErrTooLarge),
		errors.Is(err, analysis.ErrInvalidJobID):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &maxBytesErr):
		return http.StatusBadRequest, upload.ErrTooLarge.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Job not found"
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// Raw writes v without an envelope.
func Raw(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
