package core

// error_messages.go maps core errors to user-facing messages with codes for
// support reference. Users can quote the code to support staff for faster
// diagnosis.
//
//	FILE001 - File too large          (http.MaxBytesError, "file too large")
//	FILE002 - Invalid CSV             (ErrParse)
//	FILE003 - Encoding error          ("encoding error")
//	FILE004 - No file                 ("no file provided")
//	FILE005 - Empty file              (ErrEmptyInput)
//	FILE006 - Not a CSV file          (ErrNotCSV)
//	VAL001  - Too few columns         (ErrInvalidStructure)
//	VAL002  - Missing headers         (ErrMissingHeaders)
//	UPL002  - System busy             (ErrTooManyUploads)
//	UPL003  - Rate limited            (web rate limiter)
//	UPL004  - Request cancelled       (context.Canceled)
//	UPL005  - Request timeout         (context.DeadlineExceeded)
//	STO001  - File not found          (ErrNotFound)
//	STO002  - File unreadable         (ErrRead)
//	ERR000  - Unknown error           (fallback)
//
// The web layer adds AUTH001 (no session), AUTH002 (bad credentials) and
// VAL003 (unsupported download format) without going through MapError.
//
// Sentinels are matched with errors.Is first. Errors that arrive as plain
// text (multipart parsing, third-party libraries) fall back to a
// case-insensitive substring match.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotCSV is returned when the uploaded filename lacks a .csv extension.
// It is a parse failure for outcome purposes.
var ErrNotCSV = fmt.Errorf("%w: file type not allowed", ErrParse)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is ordered: the first errors.Is match wins, so the more
// specific ErrNotCSV precedes ErrParse.
var sentinelMessages = []sentinelMessage{
	{ErrNotCSV, UserMessage{
		Message: "File type not allowed",
		Action:  "Please upload a file with a .csv extension",
		Code:    "FILE006",
	}},
	{ErrParse, UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma- or pipe-separated with consistent columns",
		Code:    "FILE002",
	}},
	{ErrEmptyInput, UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Please upload a CSV file with data rows",
		Code:    "FILE005",
	}},
	{ErrInvalidStructure, UserMessage{
		Message: "The file must have at least two columns",
		Action:  "Check the delimiter and column layout of your file",
		Code:    "VAL001",
	}},
	{ErrMissingHeaders, UserMessage{
		Message: "The file has no column headers",
		Action:  "Add a header row naming each column",
		Code:    "VAL002",
	}},
	{ErrTooManyUploads, UserMessage{
		Message: "System is busy processing other uploads",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Try uploading a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{ErrNotFound, UserMessage{
		Message: "File not found",
		Action:  "Refresh the page to see the current list of files",
		Code:    "STO001",
	}},
	{ErrRead, UserMessage{
		Message: "The stored file could not be read",
		Action:  "Upload the original file again",
		Code:    "STO002",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"file too large", UserMessage{
		Message: "File exceeds maximum size limit",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}},
	{"encoding error", UserMessage{
		Message: "File contains invalid characters",
		Action:  "Save file as UTF-8 encoding",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE004",
	}},
	{"no such file", UserMessage{
		Message: "File not found",
		Action:  "Refresh the page to see the current list of files",
		Code:    "STO001",
	}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
//
// Example:
//
//	msg := MapError(fmt.Errorf("upload: %w", ErrEmptyInput))
//	// msg.Code == "FILE005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
