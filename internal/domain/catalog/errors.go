package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes catalog failure semantics across the registry,
// the file contracts and the synchronizer. A code is itself an error so
// callers can match with errors.Is(err, catalog.CodeDuplicateVariant).
type ErrorCode string

const (
	CodeValidation       ErrorCode = "validation"
	CodeDuplicateID      ErrorCode = "duplicate_id"
	CodeDuplicateVariant ErrorCode = "duplicate_variant"
	CodeMissingParent    ErrorCode = "missing_parent"
	CodeMissingFile      ErrorCode = "missing_file"
	CodeUnknownLibrary   ErrorCode = "unknown_library"
	CodeHeaderParse      ErrorCode = "header_parse"
	CodeEnvironmentQuery ErrorCode = "environment_query"
	CodeStorage          ErrorCode = "storage"
	CodeNotFound         ErrorCode = "not_found"
)

func (c ErrorCode) Error() string { return string(c) }

// Error is the canonical catalog error. Subject names the offending
// identifier: a spec id, library id, implementation key or file path.
type Error struct {
	Code    ErrorCode
	Op      string
	Subject string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if op := strings.TrimSpace(e.Op); op != "" {
		b.WriteString(op)
		b.WriteString(": ")
	}
	if subj := strings.TrimSpace(e.Subject); subj != "" {
		b.WriteString(subj)
		b.WriteString(": ")
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = string(e.Code)
	}
	fmt.Fprintf(&b, "%s (%s)", msg, e.Code)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	code, ok := target.(ErrorCode)
	return ok && e != nil && e.Code == code
}

// NewError builds a catalog error with explicit code, operation and subject.
func NewError(code ErrorCode, op, subject, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Subject: strings.TrimSpace(subject),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Errorf is NewError with a formatted message and no cause.
func Errorf(code ErrorCode, op, subject, format string, args ...any) error {
	return NewError(code, op, subject, fmt.Sprintf(format, args...), nil)
}

// Wrap annotates an existing error with catalog error semantics.
func Wrap(code ErrorCode, op, subject string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, subject, err.Error(), err)
}

// IsCode checks whether err (or a wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return errors.Is(err, code)
}

// CodeOf extracts the outermost catalog error code when available.
func CodeOf(err error) ErrorCode {
	var catErr *Error
	if !errors.As(err, &catErr) {
		return ""
	}
	return catErr.Code
}

// SubjectOf extracts the offending identifier when available.
func SubjectOf(err error) string {
	var catErr *Error
	if !errors.As(err, &catErr) {
		return ""
	}
	return catErr.Subject
}
