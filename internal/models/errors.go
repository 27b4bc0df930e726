package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a dispatch did not complete.
type ErrorKind string

const (
	KindAgentNotFound     ErrorKind = "AgentNotFound"
	KindAgentInactive     ErrorKind = "AgentInactive"
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindUserNotFound      ErrorKind = "UserNotFound"
	KindNoSuitableItem    ErrorKind = "NoSuitableItem"
	KindNoEligibleProject ErrorKind = "NoEligibleProject"
	KindCollaboratorFault ErrorKind = "CollaboratorFault"
	KindTimeout           ErrorKind = "Timeout"
	KindPersistenceFault  ErrorKind = "PersistenceFault"
	KindInterrupted       ErrorKind = "Interrupted"
)

// Error is a classified orchestration error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return FormatError(e.Kind, fmt.Sprintf("%s: %v", e.Msg, e.Err))
	}
	return FormatError(e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// NewError creates a classified error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind. Deadline expiry is reported as KindTimeout and any
// other unclassified error as KindCollaboratorFault.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCollaboratorFault
}

// FormatError renders the short string stored on a failed task.
func FormatError(kind ErrorKind, msg string) string {
	if kind == "" {
		return msg
	}
	return string(kind) + ": " + msg
}
