// Package clinerr defines the error codes surfaced by the clinical record
// API. Services return *Error values; handlers map them onto HTTP responses
// without inspecting message text.
package clinerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes. Clients switch on these, never on message text.
const (
	CodeMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	CodeInvalidDateRange      = "INVALID_DATE_RANGE"
	CodeStateConflict         = "STATE_CONFLICT"
	CodePatientNotFound       = "PATIENT_NOT_FOUND"
	CodeRecordNotFound        = "RECORD_NOT_FOUND"
	CodeNoteNotFound          = "NOTE_NOT_FOUND"
	CodeMedicationNotFound    = "MEDICATION_NOT_FOUND"
	CodeHistoryNotFound       = "HISTORY_NOT_FOUND"
	CodeAppointmentNotFound   = "APPOINTMENT_NOT_FOUND"
	CodeEventNotFound         = "EVENT_NOT_FOUND"
	CodeInternal              = "INTERNAL"
)

// Error is a coded domain error.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New returns a coded error with a formatted message.
func New(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while keeping the chain intact.
func Wrap(err error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), err: err}
}

// MissingFields reports a validation failure naming the offending fields.
func MissingFields(format string, args ...any) *Error {
	return New(CodeMissingRequiredFields, format, args...)
}

// InvalidDateRange reports a query window whose start is after its end.
func InvalidDateRange(format string, args ...any) *Error {
	return New(CodeInvalidDateRange, format, args...)
}

// StateConflict reports an operation invalid for the entity's current state.
func StateConflict(format string, args ...any) *Error {
	return New(CodeStateConflict, format, args...)
}

// NotFound reports a missing entity using the given *_NOT_FOUND code.
func NotFound(code, format string, args ...any) *Error {
	return New(code, format, args...)
}

// CodeOf extracts the error code from err, or CodeInternal when err carries
// no *Error in its chain.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error code onto an HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case CodeMissingRequiredFields, CodeInvalidDateRange:
		return http.StatusBadRequest
	case CodeStateConflict:
		return http.StatusConflict
	case CodePatientNotFound, CodeRecordNotFound, CodeNoteNotFound,
		CodeMedicationNotFound, CodeHistoryNotFound,
		CodeAppointmentNotFound, CodeEventNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
