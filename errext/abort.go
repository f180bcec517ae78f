package errext

import (
	"errors"

	"github.com/liuxd6825/wdrunner/errext/exitcodes"
)

// AbortError is an error that stops a test run before all modules were
// processed, e.g. an OS signal.
type AbortError struct {
	Reason string
}

var _ HasExitCode = &AbortError{}

// Error returns the reason of the abort.
func (a *AbortError) Error() string {
	return a.Reason
}

// ExitCode returns the status code used when the wdrunner process exits.
func (a *AbortError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ExternalAbort
}

// AbortedBySignal is the reason used when the run was interrupted by the OS.
const AbortedBySignal = "test run aborted by signal"

// IsAbortError returns true if err is *AbortError.
func IsAbortError(err error) bool {
	if err == nil {
		return false
	}
	var abortErr *AbortError
	return errors.As(err, &abortErr)
}
