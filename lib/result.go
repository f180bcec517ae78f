package lib

import (
	"encoding/json"
	"fmt"

	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// Status is the outcome of a test case or a module.
type Status string

// Possible statuses.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TestCaseResult is the outcome of one test case.
type TestCaseResult struct {
	Name     string         `json:"name"`
	Status   Status         `json:"status"`
	Err      string         `json:"error,omitempty"`
	Duration types.Duration `json:"duration"`
}

// HookError is a recorded hook failure.
type HookError struct {
	Kind HookKind `json:"hook"`
	// TestCase is set for beforeEach/afterEach failures.
	TestCase string `json:"testcase,omitempty"`
	Err      error  `json:"-"`
}

func (he HookError) Error() string {
	if he.TestCase != "" {
		return fmt.Sprintf("%s hook for %q: %v", he.Kind, he.TestCase, he.Err)
	}
	return fmt.Sprintf("%s hook: %v", he.Kind, he.Err)
}

func (he HookError) Unwrap() error {
	return he.Err
}

// MarshalJSON adds the error message, which json cannot render on its own.
func (he HookError) MarshalJSON() ([]byte, error) {
	type alias HookError
	return json.Marshal(struct {
		alias
		Message string `json:"message"`
	}{alias(he), he.Error()})
}

// ModuleResult is everything one module run produced.
type ModuleResult struct {
	Path      string           `json:"path"`
	Name      string           `json:"name"`
	Status    Status           `json:"status"`
	TestCases []TestCaseResult `json:"testcases"`

	// SessionError is set when the session could not be created.
	SessionError *sessionerr.Error `json:"-"`
	HookErrors   []HookError       `json:"hookErrors,omitempty"`
	Duration     types.Duration    `json:"duration"`
}

// ErrorCount is the module's contribution to RunReport.ErrorCount: one for a
// session error plus one per hook error.
func (mr ModuleResult) ErrorCount() int {
	n := len(mr.HookErrors)
	if mr.SessionError != nil {
		n++
	}
	return n
}

// ErrorMessages returns one message per counted error, session error first.
func (mr ModuleResult) ErrorMessages() []string {
	msgs := make([]string, 0, mr.ErrorCount())
	if mr.SessionError != nil {
		msgs = append(msgs, mr.SessionError.Message)
	}
	for _, he := range mr.HookErrors {
		msgs = append(msgs, he.Error())
	}
	return msgs
}

// Count returns how many test cases ended with status s.
func (mr ModuleResult) Count(s Status) int {
	n := 0
	for _, tc := range mr.TestCases {
		if tc.Status == s {
			n++
		}
	}
	return n
}

// MarshalJSON renders SessionError with its stable fields.
func (mr ModuleResult) MarshalJSON() ([]byte, error) {
	type alias ModuleResult
	return json.Marshal(struct {
		alias
		SessionError *sessionErrorJSON `json:"sessionError,omitempty"`
	}{alias(mr), newSessionErrorJSON(mr.SessionError)})
}

type sessionErrorJSON struct {
	Name                     string `json:"name"`
	Message                  string `json:"message"`
	DetailedErr              string `json:"detailedErr,omitempty"`
	Code                     string `json:"code,omitempty"`
	SessionCreate            bool   `json:"sessionCreate"`
	SessionConnectionRefused bool   `json:"sessionConnectionRefused"`
}

func newSessionErrorJSON(e *sessionerr.Error) *sessionErrorJSON {
	if e == nil {
		return nil
	}
	return &sessionErrorJSON{
		Name:                     e.Name,
		Message:                  e.Message,
		DetailedErr:              e.DetailedErr,
		Code:                     e.Code,
		SessionCreate:            e.SessionCreate,
		SessionConnectionRefused: e.SessionConnectionRefused,
	}
}
