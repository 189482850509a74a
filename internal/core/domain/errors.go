package domain

import (
	"errors"
	"fmt"
)

// ErrorKind names the failure classes a build pipeline can surface.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindRemoteFetch       ErrorKind = "remote_fetch"
	KindDirectory         ErrorKind = "directory"
	KindDaemonUnreachable ErrorKind = "daemon_unreachable"
	KindTagResolution     ErrorKind = "tag_resolution"
	KindPackaging         ErrorKind = "packaging"
	KindBuild             ErrorKind = "build"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrRemoteFetch       = &Error{Kind: KindRemoteFetch}
	ErrDirectory         = &Error{Kind: KindDirectory}
	ErrDaemonUnreachable = &Error{Kind: KindDaemonUnreachable}
	ErrTagResolution     = &Error{Kind: KindTagResolution}
	ErrPackaging         = &Error{Kind: KindPackaging}
	ErrBuild             = &Error{Kind: KindBuild}
)

// ErrBuildActive is wrapped by directory errors refusing to touch the tree of
// a running build.
var ErrBuildActive = errors.New("build in progress")

// Error is a classified pipeline failure.
type Error struct {
	Kind    ErrorKind
	Message string
	// StatusCode is only set for remote fetch failures.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates an Error of the given kind wrapping err.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewRemoteFetchError creates a RemoteFetch error carrying the server status and message.
func NewRemoteFetchError(status int, message string) *Error {
	return &Error{
		Kind:       KindRemoteFetch,
		Message:    fmt.Sprintf("archive download failed with error code %d: %s", status, message),
		StatusCode: status,
	}
}

// KindOf returns the kind of a pipeline error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
