package lib

import (
	"context"
	"errors"

	"gopkg.in/guregu/null.v3"
)

// HookKind is the lifecycle point a hook is attached to.
type HookKind string

// Hook kinds, in the order they are declared in a module.
const (
	HookBefore     HookKind = "before"     // module setup
	HookBeforeEach HookKind = "beforeEach" // per-test-case setup
	HookAfterEach  HookKind = "afterEach"  // per-test-case teardown
	HookAfter      HookKind = "after"      // module teardown
)

// IsValid reports whether k is one of the known hook kinds.
func (k HookKind) IsValid() bool {
	switch k {
	case HookBefore, HookBeforeEach, HookAfterEach, HookAfter:
		return true
	}
	return false
}

// Hook is a lifecycle hook of a module.
type Hook struct {
	Kind HookKind
	Body Body

	// SkipOnError overrides the kind's default cascading behaviour.
	SkipOnError null.Bool
}

// SkipTestcasesOnError reports whether a failure of this hook marks every
// remaining test case of the module as skipped. Only beforeEach cascades
// unless overridden.
func (h Hook) SkipTestcasesOnError() bool {
	if h.SkipOnError.Valid {
		return h.SkipOnError.Bool
	}
	return h.Kind == HookBeforeEach
}

// TestCase is a single named test within a module.
type TestCase struct {
	Name string
	Body Body
}

// Module is one test file; it gets exactly one browser session.
type Module struct {
	// Path is the stable key of the module in a RunReport.
	Path string
	Name string
	// File is where the module was loaded from, if anywhere.
	File string

	Capabilities Capabilities
	Hooks        []Hook
	TestCases    []TestCase
}

// TestExecutor runs declarative steps against a session.
type TestExecutor interface {
	Execute(ctx context.Context, sess *SessionDescriptor, steps []Step) error
}

// SessionReleaser is implemented by executors that keep per-session
// resources, such as a network capture. ReleaseSession is called before the
// session is deleted.
type SessionReleaser interface {
	ReleaseSession(sess *SessionDescriptor)
}

// ErrNoExecutor is returned when a body made of steps is run without a
// TestExecutor.
var ErrNoExecutor = errors.New("no step executor configured")

// Body is the code of a hook or test case: either a Go function or a list of
// steps for a TestExecutor. Func wins if both are set.
type Body struct {
	Steps []Step
	Func  func(ctx context.Context, sess *SessionDescriptor) error
}

// IsEmpty reports whether the body does nothing.
func (b Body) IsEmpty() bool {
	return b.Func == nil && len(b.Steps) == 0
}

// Run executes the body.
func (b Body) Run(ctx context.Context, sess *SessionDescriptor, exec TestExecutor) error {
	if b.Func != nil {
		return b.Func(ctx, sess)
	}
	if len(b.Steps) == 0 {
		return nil
	}
	if exec == nil {
		return ErrNoExecutor
	}
	return exec.Execute(ctx, sess, b.Steps)
}

// Step is a single WebDriver command, or a named built-in command.
type Step struct {
	// Name is used in error messages only.
	Name string `yaml:"name" json:"name,omitempty"`

	// Method and Path describe a raw command; Path is relative to the
	// session URL ("/url", "/element", ...).
	Method string      `yaml:"method" json:"method,omitempty"`
	Path   string      `yaml:"path" json:"path,omitempty"`
	Body   interface{} `yaml:"body" json:"body,omitempty"`

	// Command names a built-in command instead (e.g. captureNetworkRequests).
	Command string `yaml:"command" json:"command,omitempty"`

	Expect []Expectation `yaml:"expect" json:"expect,omitempty"`
}

// Expectation is a check on a command's JSON response. Path is a gjson path;
// at most one of Equals, Contains and Exists is expected to be set.
type Expectation struct {
	Path     string      `yaml:"path" json:"path"`
	Equals   interface{} `yaml:"equals" json:"equals,omitempty"`
	Contains string      `yaml:"contains" json:"contains,omitempty"`
	Exists   *bool       `yaml:"exists" json:"exists,omitempty"`
}
