package lib

import (
	"context"

	"github.com/liuxd6825/wdrunner/lib/sessionerr"
)

// TransportFailure is the raw failure a Transport returns from CreateSession.
type TransportFailure = sessionerr.TransportFailure

// Transport creates and deletes remote browser sessions.
//
// CreateSession returns a *TransportFailure (possibly wrapped) for failures
// the remote end or the local driver process reported. DeleteSession never
// fails; problems are logged by the implementation.
type Transport interface {
	CreateSession(ctx context.Context, caps Capabilities) (*SessionDescriptor, error)
	DeleteSession(ctx context.Context, sess *SessionDescriptor)
}

// CommandExecutor sends a raw WebDriver command within a session and returns
// the response body.
type CommandExecutor interface {
	Command(ctx context.Context, sess *SessionDescriptor, method, path string, body []byte) ([]byte, error)
}
