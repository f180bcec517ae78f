package errext

import (
	"errors"

	"github.com/liuxd6825/wdrunner/errext/exitcodes"
)

// HasExitCode is implemented by errors that decide the process exit code when
// they reach the root command.
type HasExitCode interface {
	error
	ExitCode() exitcodes.ExitCode
}

// WithExitCodeIfNone attaches exitCode to err unless something in its chain
// already carries one. A nil err stays nil.
func WithExitCodeIfNone(err error, exitCode exitcodes.ExitCode) error {
	if err == nil {
		return nil
	}
	if _, ok := ExitCodeOf(err); ok {
		return err
	}
	return withExitCode{err, exitCode}
}

// ExitCodeOf returns the first exit code found in the chain of err.
func ExitCodeOf(err error) (exitcodes.ExitCode, bool) {
	var ecerr HasExitCode
	if errors.As(err, &ecerr) {
		return ecerr.ExitCode(), true
	}
	return 0, false
}

type withExitCode struct {
	error
	code exitcodes.ExitCode
}

var _ HasExitCode = withExitCode{}

func (e withExitCode) Unwrap() error {
	return e.error
}

func (e withExitCode) ExitCode() exitcodes.ExitCode {
	return e.code
}
