package model

import "fmt"

// ErrorKind classifies a domain failure for callers.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindConflict
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad request"
	default:
		return "unknown"
	}
}

// Error is a classified domain error. errors.Is matches any two errors of
// the same kind when the target carries no message, so the kind sentinels
// below can be used as targets.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is reports whether target is the sentinel for e's kind or an identical error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// Kind sentinels.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrBadRequest = &Error{Kind: KindBadRequest}
)

var (
	ErrNameRequired    = BadRequest("name is required")
	ErrNameTooLong     = BadRequest("name must be at most %d characters", MaxNameLength)
	ErrProjectRequired = BadRequest("projectId is required")
)

// NotFound returns a KindNotFound error with a formatted message.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error with a formatted message.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// BadRequest returns a KindBadRequest error with a formatted message.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}
