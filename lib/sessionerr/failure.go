package sessionerr

import (
	"fmt"

	"gopkg.in/guregu/null.v3"
)

// FailureKind tells where a raw transport failure came from.
type FailureKind uint8

// Transport failure kinds.
const (
	FailureNetwork FailureKind = iota + 1
	FailureProcessSpawn
	FailureProtocol
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureProcessSpawn:
		return "process-spawn"
	case FailureProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// CodeConnRefused is the network code reported when nothing listens on the
// remote address.
const CodeConnRefused = "ECONNREFUSED"

// TransportFailure is a raw, unclassified failure of a session create call.
// Only the fields relevant for Kind are set.
type TransportFailure struct {
	Kind FailureKind

	// network
	Code string
	Host string
	Port int

	// process-spawn
	Path         string
	PathNotFound bool
	ExitStatus   null.Int

	// protocol
	HTTPStatus    int
	RemoteError   string
	RemoteMessage string

	Err error
}

func (f *TransportFailure) Error() string {
	switch f.Kind {
	case FailureNetwork:
		if f.Code != "" {
			return fmt.Sprintf("%s %s:%d: %v", f.Code, f.Host, f.Port, f.Err)
		}
		return fmt.Sprintf("network error %s:%d: %v", f.Host, f.Port, f.Err)
	case FailureProcessSpawn:
		switch {
		case f.PathNotFound:
			return fmt.Sprintf("executable not found: %s", f.Path)
		case f.ExitStatus.Valid:
			return fmt.Sprintf("%s exited with status %d", f.Path, f.ExitStatus.Int64)
		default:
			return fmt.Sprintf("starting %s: %v", f.Path, f.Err)
		}
	case FailureProtocol:
		if f.RemoteError != "" {
			return fmt.Sprintf("HTTP %d: %s: %s", f.HTTPStatus, f.RemoteError, f.RemoteMessage)
		}
		return fmt.Sprintf("unexpected HTTP status %d", f.HTTPStatus)
	default:
		return fmt.Sprintf("transport failure: %v", f.Err)
	}
}

// Unwrap returns the underlying cause, if any.
func (f *TransportFailure) Unwrap() error {
	return f.Err
}
