// Package hooks runs a module's lifecycle hooks around its test cases.
//
// A failing beforeEach hook skips its test case and, unless the hook opts
// out, every test case after it. Teardown hooks are best-effort: they all
// run and their failures are only recorded.
package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// PanicError is a recovered panic of a hook or test body.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

// Pipeline runs the hooks and test cases of one module against one session.
// It is not safe for concurrent use; each module runner owns its own.
type Pipeline struct {
	hooks    map[lib.HookKind][]lib.Hook
	executor lib.TestExecutor
	logger   logrus.FieldLogger

	skipRemaining bool
	errors        []lib.HookError
}

// New returns a pipeline for the given hooks. Hooks of the same kind run in
// the order given.
func New(hooks []lib.Hook, executor lib.TestExecutor, logger logrus.FieldLogger) *Pipeline {
	p := &Pipeline{
		hooks:    make(map[lib.HookKind][]lib.Hook, 4),
		executor: executor,
		logger:   logger,
	}
	for _, h := range hooks {
		p.hooks[h.Kind] = append(p.hooks[h.Kind], h)
	}
	return p
}

// HookErrors returns every hook failure recorded so far.
func (p *Pipeline) HookErrors() []lib.HookError {
	return append([]lib.HookError(nil), p.errors...)
}

func (p *Pipeline) record(kind lib.HookKind, testCase string, err error) {
	p.errors = append(p.errors, lib.HookError{Kind: kind, TestCase: testCase, Err: err})
	l := p.logger.WithError(err).WithField("hook", string(kind))
	if testCase != "" {
		l = l.WithField("testcase", testCase)
	}
	l.Warn("Hook failed")
}

// run executes body and turns a panic into an error.
func (p *Pipeline) run(ctx context.Context, sess *lib.SessionDescriptor, body lib.Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return body.Run(ctx, sess, p.executor)
}

// runHooks runs the hooks of kind in order and stops at the first failure,
// which it records and returns along with the hook that failed.
func (p *Pipeline) runHooks(
	ctx context.Context, sess *lib.SessionDescriptor, kind lib.HookKind, testCase string,
) (lib.Hook, error) {
	for _, h := range p.hooks[kind] {
		if err := p.run(ctx, sess, h.Body); err != nil {
			p.record(kind, testCase, err)
			return h, err
		}
	}
	return lib.Hook{}, nil
}

// RunSetup runs the before hooks in order. The first failure stops the rest
// and is returned.
func (p *Pipeline) RunSetup(ctx context.Context, sess *lib.SessionDescriptor) error {
	_, err := p.runHooks(ctx, sess, lib.HookBefore, "")
	return err
}

// RunTestCases runs every test case with its beforeEach and afterEach hooks
// and returns one result per case, in order.
func (p *Pipeline) RunTestCases(
	ctx context.Context, sess *lib.SessionDescriptor, cases []lib.TestCase,
) []lib.TestCaseResult {
	results := make([]lib.TestCaseResult, 0, len(cases))
	for _, tc := range cases {
		results = append(results, p.runTestCase(ctx, sess, tc))
	}
	return results
}

func (p *Pipeline) runTestCase(
	ctx context.Context, sess *lib.SessionDescriptor, tc lib.TestCase,
) (res lib.TestCaseResult) {
	start := time.Now()
	res.Name = tc.Name
	logger := p.logger.WithField("testcase", tc.Name)
	defer func() {
		res.Duration = types.Duration(time.Since(start))
	}()

	if p.skipRemaining {
		res.Status = lib.StatusSkipped
		res.Err = "skipped because an earlier hook failed"
		logger.Debug("Skipping test case")
		return res
	}

	if hook, err := p.runHooks(ctx, sess, lib.HookBeforeEach, tc.Name); err != nil {
		res.Status = lib.StatusSkipped
		res.Err = fmt.Sprintf("%s hook failed: %v", lib.HookBeforeEach, err)
		if hook.SkipTestcasesOnError() {
			p.skipRemaining = true
		}
		p.runAfterEach(ctx, sess, &res)
		return res
	}

	if err := p.run(ctx, sess, tc.Body); err != nil {
		res.Status = lib.StatusFailed
		res.Err = err.Error()
		logger.WithError(err).Info("Test case failed")
	} else {
		res.Status = lib.StatusPassed
		logger.Debug("Test case passed")
	}

	p.runAfterEach(ctx, sess, &res)
	return res
}

func (p *Pipeline) runAfterEach(ctx context.Context, sess *lib.SessionDescriptor, res *lib.TestCaseResult) {
	if _, err := p.runHooks(ctx, sess, lib.HookAfterEach, res.Name); err != nil && res.Status == lib.StatusPassed {
		res.Status = lib.StatusFailed
		res.Err = fmt.Sprintf("%s hook failed: %v", lib.HookAfterEach, err)
	}
}

// RunTeardown runs every after hook, even when earlier ones fail. Failures
// are recorded, never returned.
func (p *Pipeline) RunTeardown(ctx context.Context, sess *lib.SessionDescriptor) {
	for _, h := range p.hooks[lib.HookAfter] {
		if err := p.run(ctx, sess, h.Body); err != nil {
			p.record(lib.HookAfter, "", err)
		}
	}
}
