package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classify every failure the core can report.
// Use errors.Is against these; never compare messages.
var (
	ErrParse            = errors.New("invalid csv")
	ErrEmptyInput       = errors.New("empty file")
	ErrInvalidStructure = errors.New("too few columns")
	ErrMissingHeaders   = errors.New("missing headers")
	ErrNotFound         = errors.New("file not found")
	ErrStorage          = errors.New("storage failure")
	ErrRead             = errors.New("unreadable file")
	ErrServer           = errors.New("internal error")
)

// Error is a classified core failure. Msg is safe to show to users;
// Err holds the technical cause for logging.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap exposes both the sentinel kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Outcome returns the outcome recorded for this failure.
func (e *Error) Outcome() Outcome {
	return outcomeFor(e.Kind)
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func outcomeFor(kind error) Outcome {
	switch {
	case errors.Is(kind, ErrParse):
		return OutcomeParseError
	case errors.Is(kind, ErrEmptyInput):
		return OutcomeEmpty
	case errors.Is(kind, ErrInvalidStructure):
		return OutcomeInvalidStructure
	case errors.Is(kind, ErrMissingHeaders):
		return OutcomeNoHeaders
	default:
		return OutcomeServerError
	}
}

// OutcomeOf maps any error returned by the core to its recorded outcome.
// A nil error is a success.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Outcome()
	}
	return outcomeFor(err)
}

// IsValidation reports whether err is a user-correctable input failure.
func IsValidation(err error) bool {
	switch OutcomeOf(err) {
	case OutcomeParseError, OutcomeEmpty, OutcomeInvalidStructure, OutcomeNoHeaders:
		return true
	}
	return false
}

// StatusCode maps a core error to the HTTP status a frontend should return.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyUploads):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserText returns the message to display for err. Validation and not-found
// errors carry their descriptive message; everything else is generic.
func UserText(err error) string {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) && (IsValidation(err) || errors.Is(err, ErrNotFound)) {
		return ce.Msg
	}
	return MapError(err).Message
}
