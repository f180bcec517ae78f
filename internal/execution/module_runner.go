package execution

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/liuxd6825/wdrunner/internal/hooks"
	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// DefaultCleanupTimeout bounds the teardown hooks and the session delete of a
// module whose context was already cancelled.
const DefaultCleanupTimeout = 30 * time.Second

// ModuleRunner runs a single module against its own browser session.
type ModuleRunner struct {
	Transport lib.Transport
	Executor  lib.TestExecutor
	Logger    logrus.FieldLogger
	Tracer    trace.Tracer

	// ErrorContext describes the WebDriver service for the error classifier.
	// Driver is filled in per module from the browser name when empty.
	ErrorContext sessionerr.Context

	CleanupTimeout time.Duration
}

func (mr *ModuleRunner) tracer() trace.Tracer {
	if mr.Tracer == nil {
		return noop.NewTracerProvider().Tracer("wdrunner")
	}
	return mr.Tracer
}

// Run creates a session for m, runs its hooks and test cases and deletes the
// session again. It never returns an error: every failure ends up in the
// returned result.
func (mr *ModuleRunner) Run(ctx context.Context, m *lib.Module, caps lib.Capabilities) (res lib.ModuleResult) {
	start := time.Now()
	res = lib.ModuleResult{Path: m.Path, Name: m.Name}
	logger := mr.Logger.WithField("module", m.Path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := mr.tracer().Start(ctx, "module", trace.WithAttributes(
		attribute.String("module.path", m.Path),
		attribute.String("module.name", m.Name),
	))
	defer func() {
		res.Duration = types.Duration(time.Since(start))
		span.SetAttributes(attribute.String("module.status", string(res.Status)))
		if res.Status == lib.StatusFailed {
			span.SetStatus(codes.Error, "module failed")
		}
		span.End()
	}()

	caps = caps.Merge(m.Capabilities).Merge(lib.Capabilities{"name": m.Name})
	sess, err := mr.createSession(ctx, caps)
	if err != nil {
		errCtx := mr.ErrorContext
		if errCtx.Driver == "" {
			errCtx.Driver = sessionerr.DriverName(caps.BrowserName())
		}
		res.SessionError = sessionerr.Classify(err, errCtx)
		res.Status = lib.StatusFailed
		logger.WithFields(logrus.Fields{
			"error": res.SessionError.Name,
			"code":  res.SessionError.Code,
		}).Debug(res.SessionError.Message)
		return res
	}
	logger = logger.WithField("session", sess.ID)
	logger.Debug("Session created")

	defer func() {
		cleanupCtx, cleanupCancel := mr.cleanupContext(ctx)
		defer cleanupCancel()
		if r, ok := mr.Executor.(lib.SessionReleaser); ok {
			r.ReleaseSession(sess)
		}
		mr.Transport.DeleteSession(cleanupCtx, sess)
		logger.Debug("Session deleted")
	}()

	pipeline := hooks.New(m.Hooks, mr.Executor, logger)
	setupErr := pipeline.RunSetup(ctx, sess)
	if setupErr == nil {
		res.TestCases = pipeline.RunTestCases(ctx, sess, m.TestCases)
	} else {
		logger.WithError(setupErr).Debug("Setup failed, not running any test case")
	}

	cleanupCtx, cleanupCancel := mr.cleanupContext(ctx)
	pipeline.RunTeardown(cleanupCtx, sess)
	cleanupCancel()

	res.HookErrors = pipeline.HookErrors()
	res.Status = moduleStatus(res)
	return res
}

func (mr *ModuleRunner) createSession(ctx context.Context, caps lib.Capabilities) (*lib.SessionDescriptor, error) {
	ctx, span := mr.tracer().Start(ctx, "session.create", trace.WithAttributes(
		attribute.String("browser.name", caps.BrowserName()),
	))
	defer span.End()

	sess, err := mr.Transport.CreateSession(ctx, caps)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session create failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sess.ID))
	return sess, nil
}

// cleanupContext keeps ctx's values but not its cancellation, so a module
// interrupted mid-run still releases its session.
func (mr *ModuleRunner) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := mr.CleanupTimeout
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func moduleStatus(res lib.ModuleResult) lib.Status {
	if res.SessionError != nil {
		return lib.StatusFailed
	}
	for _, he := range res.HookErrors {
		if he.Kind != lib.HookAfter {
			return lib.StatusFailed
		}
	}
	if res.Count(lib.StatusFailed) > 0 {
		return lib.StatusFailed
	}
	if len(res.TestCases) > 0 && res.Count(lib.StatusSkipped) == len(res.TestCases) {
		return lib.StatusSkipped
	}
	return lib.StatusPassed
}
