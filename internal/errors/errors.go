// Package errors defines the stable error codes reported by testlink.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// LocatorNotFound indicates no strategy could resolve a file for a reference
	LocatorNotFound ErrorCode = "LOCATOR_NOT_FOUND"
	// CaseNotFound indicates the file exists but the named test case does not
	CaseNotFound ErrorCode = "CASE_NOT_FOUND"
	// MemberNotFound indicates the file exists but the named class member does not
	MemberNotFound ErrorCode = "MEMBER_NOT_FOUND"
	// ParseFailure indicates a file could not be parsed and was skipped
	ParseFailure ErrorCode = "PARSE_FAILURE"
	// OrphanPlaceholder indicates a placeholder seen on only one side
	OrphanPlaceholder ErrorCode = "ORPHAN_PLACEHOLDER"
	// DocStyleUnsupported indicates an @@ placeholder on a chain-style test
	DocStyleUnsupported ErrorCode = "DOC_STYLE_UNSUPPORTED"
	// UnsafeDestructiveOperation indicates pruning without --force
	UnsafeDestructiveOperation ErrorCode = "UNSAFE_DESTRUCTIVE_OPERATION"
	// UnsyncedLink indicates a link declared on only one side
	UnsyncedLink ErrorCode = "UNSYNCED_LINK"
	// OrphanDeclaration indicates a declaration whose target no longer exists
	OrphanDeclaration ErrorCode = "ORPHAN_DECLARATION"
	// UnresolvedPlaceholder indicates a placeholder awaiting `testlink pair`
	UnresolvedPlaceholder ErrorCode = "UNRESOLVED_PLACEHOLDER"
	// ConfigInvalid indicates a configuration value could not be used
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// WriteFailure indicates a file could not be persisted
	WriteFailure ErrorCode = "WRITE_FAILURE"
)

// LinkError represents a testlink error with code, message and source position.
type LinkError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	File    string    `json:"file,omitempty"`
	Line    int       `json:"line,omitempty"`
	cause   error
}

// New creates a LinkError.
func New(code ErrorCode, message string) *LinkError {
	return &LinkError{Code: code, Message: message}
}

// Newf creates a LinkError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *LinkError {
	return &LinkError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a LinkError around cause.
func Wrap(code ErrorCode, message string, cause error) *LinkError {
	return &LinkError{Code: code, Message: message, cause: cause}
}

// At attaches a source position.
func (e *LinkError) At(file string, line int) *LinkError {
	e.File = file
	e.Line = line
	return e
}

// Error implements the error interface
func (e *LinkError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.File != "" {
		if e.Line > 0 {
			msg = fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
		} else {
			msg = e.File + ": " + msg
		}
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *LinkError) Unwrap() error {
	return e.cause
}

// Is matches another LinkError by code.
func (e *LinkError) Is(target error) bool {
	var le *LinkError
	if stderrors.As(target, &le) {
		return le.Code == e.Code
	}
	return false
}

// CodeOf extracts the error code, or "" if err is not a LinkError.
func CodeOf(err error) ErrorCode {
	var le *LinkError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ""
}

// AsLinkError finds the first LinkError in err's chain.
func AsLinkError(err error) (*LinkError, bool) {
	var le *LinkError
	ok := stderrors.As(err, &le)
	return le, ok
}

// HasCode reports whether err wraps a LinkError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Collector accumulates recoverable errors so a run can report them at the end.
type Collector struct {
	errs []error
}

// Add records err if non-nil.
func (c *Collector) Add(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Merge appends every error from other.
func (c *Collector) Merge(other []error) {
	for _, err := range other {
		c.Add(err)
	}
}

// Errors returns the recorded errors in insertion order.
func (c *Collector) Errors() []error {
	return c.errs
}
