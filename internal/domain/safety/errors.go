package safety

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies a core error. Callers branch on the code, never on the message.
type Code string

const (
	CodeValidation        Code = "validation"
	CodeAccessDenied      Code = "access_denied"
	CodeInvalidTransition Code = "invalid_transition"
	CodeStaleWrite        Code = "stale_write"
	CodeRepository        Code = "repository"
	CodeNotFound          Code = "not_found"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its code.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrAccessDenied      = &Error{Code: CodeAccessDenied}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrStaleWrite        = &Error{Code: CodeStaleWrite}
	ErrRepository        = &Error{Code: CodeRepository}
	ErrNotFound          = &Error{Code: CodeNotFound}
)

// Guard identifiers reported with CodeInvalidTransition.
const (
	GuardMissingSignatures = "missing_signatures"
	GuardMissingRiskLines  = "missing_risk_lines"
	GuardInvalidRiskLines  = "invalid_risk_lines"
	GuardNoParticipants    = "no_participants"
	GuardReopenLimit       = "reopen_limit"
	GuardMissingAttachment = "missing_attachment"
	GuardMissingAptitude   = "missing_aptitude"
	GuardValidityNotDue    = "validity_not_due"
	GuardStateNotEditable  = "state_not_editable"
	GuardUnknownTransition = "unknown_transition"
	GuardWrongSourceState  = "wrong_source_state"
)

// Error is the single error type surfaced by the core packages.
type Error struct {
	Code    Code
	Op      string
	Guard   string
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Guard != "" {
		b.WriteString(" (")
		b.WriteString(e.Guard)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so errors.Is(err, ErrStaleWrite) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Guard == "" || t.Guard == e.Guard)
}

func Validation(op string, fields []string, format string, args ...any) error {
	return &Error{Code: CodeValidation, Op: op, Fields: fields, Message: fmt.Sprintf(format, args...)}
}

// AccessDenied never carries details about the data that was withheld.
func AccessDenied(op string) error {
	return &Error{Code: CodeAccessDenied, Op: op, Message: "caller is not permitted to perform this operation"}
}

func InvalidTransition(op, guard, format string, args ...any) error {
	return &Error{Code: CodeInvalidTransition, Op: op, Guard: guard, Message: fmt.Sprintf(format, args...)}
}

func StaleWrite(op string, expected, current int) error {
	return &Error{Code: CodeStaleWrite, Op: op,
		Message: fmt.Sprintf("expected version %d but document is at version %d", expected, current)}
}

func NotFound(op string, what string) error {
	return &Error{Code: CodeNotFound, Op: op, Message: what + " not found"}
}

// RepositoryError wraps a storage failure. Core errors pass through unchanged.
func RepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Code: CodeRepository, Op: op, Err: err}
}

// CodeOf returns the code of err, or "" when err is not a core error.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GuardOf returns the failing guard identifier, if any.
func GuardOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Guard
	}
	return ""
}

// HTTPStatus maps an error to the status code the transport layer responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeStaleWrite:
		return http.StatusPreconditionFailed
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRepository:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
