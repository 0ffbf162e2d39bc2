package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as the user-facing message from the core:
// descriptive text for validation and not-found failures, a generic message
// with a support code for everything else.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/tidycsv/internal/core"
	"github.com/JonMunkholm/tidycsv/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Status) and human-readable
// (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
}

var (
	errNoFile       = errors.New("no file provided")
	errFileTooLarge = errors.New("file too large")
)

// respondError logs err and writes it as an ErrorResponse with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	ue := core.NewUserError(err)

	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", ue.Technical.Error(),
		"code", ue.User.Code,
	)

	text := core.UserText(ue.Technical)
	writeJSON(w, statusCode, ErrorResponse{
		Error:   text,
		Message: text,
		Action:  ue.User.Action,
		Code:    ue.User.Code,
		Status:  statusCode,
	})
}

// respondCoreError writes err with the status the core assigns to it.
func respondCoreError(w http.ResponseWriter, r *http.Request, err error) {
	respondError(w, r, err, core.StatusCode(err))
}

// writeJSON encodes v as JSON with status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
