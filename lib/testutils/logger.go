// Package testutils has helpers shared by the tests of several packages.
package testutils

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type testOutput struct{ testing.TB }

func (to testOutput) Write(p []byte) (int, error) {
	to.Logf("%s", p)
	return len(p), nil
}

// NewTestOutput returns an io.Writer that writes through t.Logf, so the
// output only shows up for failed or verbose tests.
func NewTestOutput(t testing.TB) io.Writer {
	return testOutput{t}
}

func newLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	if t == nil {
		l.SetOutput(io.Discard)
	} else {
		l.SetOutput(NewTestOutput(t))
	}
	return l
}

// NewLogger returns a debug-level logger writing to t's log, or discarding
// everything if t is nil.
func NewLogger(t testing.TB) *logrus.Logger {
	return newLogger(t, logrus.DebugLevel)
}

// NewLoggerWithHook returns NewLogger with a SimpleLogrusHook attached that
// records the given levels, or all of them.
func NewLoggerWithHook(t testing.TB, levels ...logrus.Level) (*logrus.Logger, *SimpleLogrusHook) {
	l := NewLogger(t)
	hook := NewLogHook(levels...)
	l.AddHook(hook)
	return l, hook
}
