package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/strixun/edgecore/internal/apperr"
)

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encoding response body", "error", err)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// RespondError writes a plain error response with the given status, a short
// machine-readable code, and a human-readable message.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, errorBody{Error: code, Message: message})
}

// RespondAppError maps an apperr.Error (or any error) to its HTTP status and
// writes the corresponding JSON body. This is the single place a handler
// should call when a component returns an error.
func RespondAppError(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		RespondError(w, http.StatusInternalServerError, string(apperr.KindInternal), "internal error")
		return
	}

	if ae.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
	}

	Respond(w, ae.HTTPStatus, errorBody{
		Error:      string(ae.Kind),
		Message:    ae.Message,
		Detail:     ae.Detail,
		Retryable:  ae.Retryable,
		RetryAfter: ae.RetryAfter,
	})
}
