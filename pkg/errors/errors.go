// Package errors defines the structured error model shared by the plugin
// runtime. Every failure surfaced to an operator carries a stable code plus
// a human-readable message naming the offending plugin and the violated
// constraint.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies an error category.
type Code string

// Error codes for the plugin runtime.
const (
	CodeNotFound          Code = "PLUGIN_NOT_FOUND"
	CodeAlreadyExists     Code = "PLUGIN_ALREADY_EXISTS"
	CodeLoadError         Code = "LOAD_ERROR"
	CodeConfigError       Code = "CONFIG_ERROR"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeApiError          Code = "API_ERROR"
	CodeMessageParseError Code = "MESSAGE_PARSE_ERROR"
	CodeCommandMatchError Code = "COMMAND_MATCH_ERROR"
	CodeCyclicDependency  Code = "CYCLIC_DEPENDENCY"
	CodeMissingDependency Code = "MISSING_DEPENDENCY"
	CodeResourceLimit     Code = "RESOURCE_LIMIT_EXCEEDED"
)

// Error is a structured runtime error with a code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two structured errors by code, so callers can compare with
// errors.Is against a constructor result without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a structured error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Newf creates a structured error with a formatted message and no cause.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound reports a plugin or dependency missing by name.
func ErrNotFound(name string) *Error {
	return Newf(CodeNotFound, "plugin %q not found", name)
}

// ErrAlreadyExists reports a duplicate plugin name on load.
func ErrAlreadyExists(name string) *Error {
	return Newf(CodeAlreadyExists, "plugin %q already exists", name)
}

// ErrLoadError reports an invalid artifact, unsupported type, ABI mismatch
// or nil factory result.
func ErrLoadError(message string, cause error) *Error {
	return New(CodeLoadError, message, cause)
}

// ErrConfigError reports malformed or invalid settings.
func ErrConfigError(message string, cause error) *Error {
	return New(CodeConfigError, message, cause)
}

// ErrPermissionDenied reports a sandbox or command-permission rejection.
func ErrPermissionDenied(message string) *Error {
	return Newf(CodePermissionDenied, "%s", message)
}

// ErrApiError reports a downstream protocol-call failure, including timeout.
func ErrApiError(message string, cause error) *Error {
	return New(CodeApiError, message, cause)
}

// ErrMessageParse reports malformed markup or a validation failure.
func ErrMessageParse(message string) *Error {
	return Newf(CodeMessageParseError, "%s", message)
}

// ErrCommandMatch reports an invalid command pattern.
func ErrCommandMatch(message string, cause error) *Error {
	return New(CodeCommandMatchError, message, cause)
}

// ErrCyclicDependency names the plugin on which dependency resolution
// revisited an unfinished node.
func ErrCyclicDependency(name string) *Error {
	return Newf(CodeCyclicDependency, "cyclic dependency detected at plugin %q", name)
}

// ErrMissingDependency names the dependency that is not registered.
func ErrMissingDependency(plugin, dependency string) *Error {
	return Newf(CodeMissingDependency, "plugin %q requires missing dependency %q", plugin, dependency)
}

// ErrResourceLimit reports the first violated resource ceiling.
func ErrResourceLimit(message string) *Error {
	return Newf(CodeResourceLimit, "%s", message)
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsAlreadyExists reports whether err is a duplicate-name error.
func IsAlreadyExists(err error) bool { return HasCode(err, CodeAlreadyExists) }

// IsLoadError reports whether err is a load failure.
func IsLoadError(err error) bool { return HasCode(err, CodeLoadError) }

// IsPermissionDenied reports whether err is a permission rejection.
func IsPermissionDenied(err error) bool { return HasCode(err, CodePermissionDenied) }

// IsCyclicDependency reports whether err is a dependency cycle.
func IsCyclicDependency(err error) bool { return HasCode(err, CodeCyclicDependency) }

// IsMissingDependency reports whether err is a missing dependency.
func IsMissingDependency(err error) bool { return HasCode(err, CodeMissingDependency) }

// IsCommandMatch reports whether err is an invalid-pattern failure.
func IsCommandMatch(err error) bool { return HasCode(err, CodeCommandMatchError) }

// IsMessageParse reports whether err is a markup or validation failure.
func IsMessageParse(err error) bool { return HasCode(err, CodeMessageParseError) }

// IsResourceLimit reports whether err is a resource ceiling violation.
func IsResourceLimit(err error) bool { return HasCode(err, CodeResourceLimit) }
