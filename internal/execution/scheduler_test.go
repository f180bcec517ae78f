package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/testutils"
)

const sessionNotCreatedMsg = "An error occurred while creating a new GeckoDriver session: " +
	"[SessionNotCreatedError] Session is already started"

func sessionNotCreated(context.Context, lib.Capabilities) (*lib.SessionDescriptor, error) {
	return nil, &sessionerr.TransportFailure{
		Kind:          sessionerr.FailureProtocol,
		HTTPStatus:    500,
		RemoteError:   "session not created",
		RemoteMessage: "Session is already started",
	}
}

// runnerFunc adapts a function to the Runner interface.
type runnerFunc func(ctx context.Context, m *lib.Module, caps lib.Capabilities) lib.ModuleResult

func (f runnerFunc) Run(ctx context.Context, m *lib.Module, caps lib.Capabilities) lib.ModuleResult {
	return f(ctx, m, caps)
}

func failedResult(m *lib.Module, msg string) lib.ModuleResult {
	return lib.ModuleResult{
		Path:   m.Path,
		Name:   m.Name,
		Status: lib.StatusFailed,
		SessionError: &sessionerr.Error{
			Kind: sessionerr.KindSessionCreate, Name: sessionerr.FallbackName, Message: msg, SessionCreate: true,
		},
	}
}

func newScheduler(t *testing.T, ft *fakeTransport) *Scheduler {
	return &Scheduler{
		Runner: &ModuleRunner{Transport: ft, Logger: testutils.NewLogger(t)},
		Logger: testutils.NewLogger(t),
	}
}

func firefox() lib.Capabilities { return lib.Capabilities{"browserName": "firefox"} }

func TestSchedulerWithoutFailFast(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{createFn: sessionNotCreated}
	modules := []*lib.Module{module("suite/first"), module("suite/second")}

	report, err := newScheduler(t, ft).Run(context.Background(), modules,
		lib.RunOptions{Workers: 1, Capabilities: firefox()})
	require.NoError(t, err)

	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, []string{sessionNotCreatedMsg, sessionNotCreatedMsg}, report.ErrorMessages)
	assert.Equal(t, []string{"suite/first", "suite/second"}, report.Keys())
	require.NotNil(t, report.LastError)
	assert.Equal(t, sessionNotCreatedMsg, report.LastError.Message)
	for _, key := range report.Keys() {
		res, ok := report.Get(key)
		require.True(t, ok)
		assert.Equal(t, lib.StatusFailed, res.Status)
		assert.Equal(t, sessionNotCreatedMsg, res.SessionError.Message)
	}
	assert.Empty(t, ft.deletedSessions())
}

func TestSchedulerFailFast(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{createFn: sessionNotCreated}
	modules := []*lib.Module{module("suite/first"), module("suite/second")}

	report, err := newScheduler(t, ft).Run(context.Background(), modules,
		lib.RunOptions{FailFast: true, Workers: 1, Capabilities: firefox()})

	var serr *sessionerr.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "SessionNotCreatedError", serr.Name)
	assert.Equal(t, sessionNotCreatedMsg, err.Error())

	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 1, report.Len())
	assert.Equal(t, []string{"suite/first"}, report.Keys())
	assert.Same(t, serr, report.LastError)
	assert.Equal(t, 1, ft.created())
}

func TestSchedulerPassingRun(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	modules := []*lib.Module{
		module("a"),
		module("b", lib.TestCase{Name: "ok", Body: passing()}, lib.TestCase{
			Name: "fails", Body: funcBody(func() error { return errors.New("nope") }),
		}),
	}

	report, err := newScheduler(t, ft).Run(context.Background(), modules,
		lib.RunOptions{FailFast: true, Workers: 2, Capabilities: firefox()})
	require.NoError(t, err)

	assert.Equal(t, 0, report.ErrorCount)
	assert.Nil(t, report.LastError)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.ElementsMatch(t, []string{"session-1", "session-2"}, ft.deletedSessions())
}

func TestSchedulerKeepsDiscoveryOrder(t *testing.T) {
	t.Parallel()

	const n = 6
	modules := make([]*lib.Module, n)
	delays := make(map[string]time.Duration, n)
	for i := range modules {
		modules[i] = module(string(rune('a' + i)))
		delays[modules[i].Path] = time.Duration(n-i) * 5 * time.Millisecond
	}

	s := &Scheduler{
		Logger: testutils.NewLogger(t),
		Runner: runnerFunc(func(_ context.Context, m *lib.Module, _ lib.Capabilities) lib.ModuleResult {
			time.Sleep(delays[m.Path])
			return failedResult(m, "failed "+m.Path)
		}),
	}

	report, err := s.Run(context.Background(), modules, lib.RunOptions{Workers: n})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, report.Keys())
	assert.Equal(t, []string{"failed a", "failed b", "failed c", "failed d", "failed e", "failed f"},
		report.ErrorMessages)
	// "a" finishes last but "f" is last in discovery order.
	assert.Equal(t, "failed f", report.LastError.Message)
}

func TestSchedulerBoundsParallelism(t *testing.T) {
	t.Parallel()

	var (
		mu            sync.Mutex
		running, peak int
	)
	s := &Scheduler{
		Logger: testutils.NewLogger(t),
		Runner: runnerFunc(func(_ context.Context, m *lib.Module, _ lib.Capabilities) lib.ModuleResult {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return lib.ModuleResult{Path: m.Path, Name: m.Name, Status: lib.StatusPassed}
		}),
	}

	modules := make([]*lib.Module, 10)
	for i := range modules {
		modules[i] = module(string(rune('a' + i)))
	}
	report, err := s.Run(context.Background(), modules, lib.RunOptions{Workers: 3})
	require.NoError(t, err)
	assert.Equal(t, 10, report.Len())
	assert.LessOrEqual(t, peak, 3)
}

func TestSchedulerDrainTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	finished := make(chan struct{})
	s := &Scheduler{
		Logger: testutils.NewLogger(t),
		Runner: runnerFunc(func(_ context.Context, m *lib.Module, _ lib.Capabilities) lib.ModuleResult {
			if m.Path == "slow" {
				<-release
				close(finished)
				return lib.ModuleResult{Path: m.Path, Status: lib.StatusPassed}
			}
			time.Sleep(10 * time.Millisecond)
			return failedResult(m, "broken")
		}),
	}

	start := time.Now()
	report, err := s.Run(context.Background(), []*lib.Module{module("slow"), module("broken")},
		lib.RunOptions{FailFast: true, Workers: 2, DrainTimeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	close(release)
	<-finished

	require.Error(t, err)
	assert.Equal(t, "broken", err.Error())
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, []string{"broken"}, report.Keys())
	assert.Equal(t, 1, report.ErrorCount)
}

func TestSchedulerContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	s := &Scheduler{
		Logger: testutils.NewLogger(t),
		Runner: runnerFunc(func(_ context.Context, m *lib.Module, _ lib.Capabilities) lib.ModuleResult {
			calls++
			cancel()
			return lib.ModuleResult{Path: m.Path, Status: lib.StatusPassed}
		}),
	}

	report, err := s.Run(ctx, []*lib.Module{module("a"), module("b"), module("c")}, lib.RunOptions{Workers: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.LessOrEqual(t, report.Len(), 1)
}
