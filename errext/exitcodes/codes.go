// Package exitcodes contains the constants representing possible wdrunner exit error codes.
//
//nolint:revive
package exitcodes

// ExitCode is just a type representing a process exit code for wdrunner
type ExitCode uint8

// list of exit codes used by wdrunner
const (
	TestsFailed         ExitCode = 99
	SessionCreateFailed ExitCode = 100
	GenericEngine       ExitCode = 103
	InvalidConfig       ExitCode = 104
	ExternalAbort       ExitCode = 105
	GoPanic             ExitCode = 109
)
