// Package sessionerr turns raw session-creation failures into a closed set of
// typed errors that callers can branch on without looking at the message.
package sessionerr

import (
	"github.com/liuxd6825/wdrunner/errext"
	"github.com/liuxd6825/wdrunner/errext/exitcodes"
)

// Kind is the classified variant of a session error.
type Kind uint8

// Session error kinds. KindSessionCreate is the fallback for anything the
// classifier has no rule for.
const (
	KindSessionCreate Kind = iota
	KindServerPathNotFound
	KindServerTerminatedEarly
	KindConnectionRefused
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindServerPathNotFound:
		return "ServerPathNotFound"
	case KindServerTerminatedEarly:
		return "ServerTerminatedEarly"
	case KindConnectionRefused:
		return "ConnectionRefused"
	case KindRemote:
		return "Remote"
	default:
		return FallbackName
	}
}

// FallbackName is the Name of errors that no rule classified.
const FallbackName = "SessionCreateError"

// Error is a classified session-creation error. The boolean flags, Code and
// Name are stable and meant to be tested directly; Message is a single
// human-readable line and DetailedErr an optional multi-line diagnostic that
// is never part of Message.
type Error struct {
	Kind Kind
	// Name is Kind.String() for local kinds and the typed remote name
	// (e.g. SessionNotCreatedError) for KindRemote.
	Name        string
	Message     string
	DetailedErr string
	ShowTrace   bool
	Code        string

	SessionCreate            bool
	SessionConnectionRefused bool

	// Raw protocol data, when the failure came from a reachable remote end.
	HTTPStatus  int
	RemoteError string

	Err error
}

var (
	_ errext.HasExitCode = &Error{}
	_ errext.HasHint     = &Error{}
	_ errext.HasTrace    = &Error{}
)

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the raw failure the error was classified from.
func (e *Error) Unwrap() error {
	return e.Err
}

// Hint returns the detailed diagnostic, if any.
func (e *Error) Hint() string {
	return e.DetailedErr
}

// ShouldShowTrace reports whether the reporter should print the cause chain.
func (e *Error) ShouldShowTrace() bool {
	return e.ShowTrace
}

// ExitCode returns the status code used when wdrunner exits because of e.
func (e *Error) ExitCode() exitcodes.ExitCode {
	return exitcodes.SessionCreateFailed
}
