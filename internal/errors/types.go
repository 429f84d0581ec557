// Package errors provides the structured error type used across autobuild.
//
// Errors carry a category (ErrorType), a stable code for programmatic
// handling, an optional cause and free-form context. Configuration failures
// are fatal. Build failures are recoverable and the server keeps serving.
package errors

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// ErrorType is the broad category of an AutobuildError.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
)

// Stable codes, safe to match on.
const (
	ErrCodeInvalidPath        = "ERR_INVALID_PATH"
	ErrCodeInvalidIgnoreRegex = "ERR_INVALID_IGNORE_REGEX"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodePreBuildFailed     = "ERR_PRE_BUILD_FAILED"
	ErrCodeBuildFailed        = "ERR_BUILD_FAILED"
	ErrCodeOutputLocked       = "ERR_OUTPUT_LOCKED"
	ErrCodeWatchFailed        = "ERR_WATCH_FAILED"
	ErrCodeServerFailed       = "ERR_SERVER_FAILED"
)

// recoverable lists the categories after which autobuild keeps running.
var recoverable = map[ErrorType]bool{
	ErrorTypeValidation: true,
	ErrorTypeBuild:      true,
	ErrorTypeNetwork:    true,
}

// AutobuildError is the error type returned by autobuild packages.
type AutobuildError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Recoverable bool
}

func newError(t ErrorType, code, message string, cause error) *AutobuildError {
	return &AutobuildError{
		Type:        t,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: recoverable[t],
	}
}

// Error renders "[CODE] path message: cause", leaving out empty parts.
func (e *AutobuildError) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString("[" + e.Code + "] ")
	}
	if e.FilePath != "" {
		b.WriteString(e.FilePath + " ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *AutobuildError) Unwrap() error {
	return e.Cause
}

// Is matches another AutobuildError with the same type and code.
func (e *AutobuildError) Is(target error) bool {
	t, ok := target.(*AutobuildError)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// WithContext attaches a key/value pair and returns e.
func (e *AutobuildError) WithContext(key string, value interface{}) *AutobuildError {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[key] = value
	return e
}

// WithPath records the file the error is about and returns e.
func (e *AutobuildError) WithPath(filePath string) *AutobuildError {
	e.FilePath = filePath
	return e
}

// Fields flattens the error into key/value pairs for structured logging.
// Context keys come last, sorted.
func (e *AutobuildError) Fields() []interface{} {
	out := []interface{}{"type", string(e.Type), "code", e.Code}
	if e.FilePath != "" {
		out = append(out, "file", e.FilePath)
	}
	for _, k := range slices.Sorted(maps.Keys(e.Context)) {
		out = append(out, k, e.Context[k])
	}
	return out
}

func NewValidationError(code, message string) *AutobuildError {
	return newError(ErrorTypeValidation, code, message, nil)
}

func NewBuildError(code, message string, cause error) *AutobuildError {
	return newError(ErrorTypeBuild, code, message, cause)
}

func NewIOError(code, message string, cause error) *AutobuildError {
	return newError(ErrorTypeIO, code, message, cause)
}

func NewConfigError(code, message string, cause error) *AutobuildError {
	return newError(ErrorTypeConfig, code, message, cause)
}

func NewNetworkError(code, message string, cause error) *AutobuildError {
	return newError(ErrorTypeNetwork, code, message, cause)
}

// Wrap returns a new AutobuildError caused by err. When err already is one,
// its path, context and recoverability carry over.
func Wrap(err error, errType ErrorType, code, message string) *AutobuildError {
	if err == nil {
		return nil
	}

	wrapped := newError(errType, code, message, err)
	var inner *AutobuildError
	if errors.As(err, &inner) {
		wrapped.Context = inner.Context
		wrapped.FilePath = inner.FilePath
		wrapped.Recoverable = inner.Recoverable
	}
	return wrapped
}

// IsRecoverable reports whether the outermost AutobuildError in err's chain
// is recoverable. Other errors are not.
func IsRecoverable(err error) bool {
	var ae *AutobuildError
	return errors.As(err, &ae) && ae.Recoverable
}

func IsBuildError(err error) bool {
	return HasErrorType(err, ErrorTypeBuild)
}

func IsConfigError(err error) bool {
	return HasErrorType(err, ErrorTypeConfig)
}

// HasErrorType reports whether any AutobuildError in the chain has errType.
func HasErrorType(err error, errType ErrorType) bool {
	return anyInChain(err, func(ae *AutobuildError) bool { return ae.Type == errType })
}

// HasErrorCode reports whether any AutobuildError in the chain has code.
func HasErrorCode(err error, code string) bool {
	return anyInChain(err, func(ae *AutobuildError) bool { return ae.Code == code })
}

func anyInChain(err error, match func(*AutobuildError) bool) bool {
	var ae *AutobuildError
	for errors.As(err, &ae) {
		if match(ae) {
			return true
		}
		err = ae.Cause
	}
	return false
}
