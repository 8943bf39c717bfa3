// Package chat implements conversation and message synchronization: the
// request gate, unread accounting, live conversation projections, message
// window pagination, and conversation mutations.
package chat

import (
	"errors"
	"fmt"
)

// Code classifies an operation failure for the presentation layer.
type Code string

const (
	CodeNotAuthenticated   Code = "not_authenticated"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodePermissionDenied   Code = "permission_denied"
	CodeSelfConversation   Code = "self_conversation"
	CodeFollowRequired     Code = "follow_required"
	CodeMessagesNotAllowed Code = "messages_not_allowed"
	CodeNetworkError       Code = "network_error"
	CodeUploadFailed       Code = "upload_failed"
	CodeLimitExceeded      Code = "limit_exceeded"
)

// Error is a typed operation failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a typed error.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Ef builds a typed error with a formatted message.
func Ef(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a typed error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the failure code, or empty for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
