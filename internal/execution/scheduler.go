// Package execution runs test modules, each against its own browser session,
// and aggregates their results into a lib.RunReport.
package execution

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// Runner runs one module and reports everything through the result.
// *ModuleRunner is the implementation used outside of tests.
type Runner interface {
	Run(ctx context.Context, m *lib.Module, caps lib.Capabilities) lib.ModuleResult
}

// Scheduler starts module runners with bounded parallelism and is the only
// writer of the run report.
type Scheduler struct {
	Runner Runner
	Logger logrus.FieldLogger
}

type moduleDone struct {
	index  int
	result lib.ModuleResult
}

// Run runs modules in order, at most opts.Workers at a time, and returns the
// report with modules in input order.
//
// With opts.FailFast the first session failure stops new modules from
// starting; modules already running get opts.DrainTimeout to finish and are
// left out of the report if they don't. The triggering *sessionerr.Error is
// returned along with the report. A cancelled ctx stops the run the same way
// and ctx.Err() is returned.
func (s *Scheduler) Run(ctx context.Context, modules []*lib.Module, opts lib.RunOptions) (*lib.RunReport, error) {
	start := time.Now()
	logger := s.Logger.WithField("phase", "scheduler-run")

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = lib.DefaultDrainTimeout
	}
	logger.WithFields(logrus.Fields{
		"modules":  len(modules),
		"workers":  workers,
		"failFast": opts.FailFast,
	}).Debug("Start of test run")

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	// Buffered for every module so that runners abandoned after the drain
	// timeout can still finish.
	results := make(chan moduleDone, len(modules))
	done := make([]*lib.ModuleResult, len(modules))

	var (
		trigger  *sessionerr.Error
		next     int
		inFlight int
		stopped  bool
	)

	collect := func(d moduleDone) {
		inFlight--
		done[d.index] = &d.result
		if opts.FailFast && trigger == nil && d.result.SessionError != nil {
			trigger = d.result.SessionError
			stopped = true
			logger.WithFields(logrus.Fields{
				"module": d.result.Path,
				"error":  trigger.Name,
			}).Debug("Session failed, not starting any more modules")
		}
	}

	for {
		if !stopped && ctx.Err() != nil {
			stopped = true
		}
		for !stopped && inFlight < workers && next < len(modules) {
			go s.runModule(runCtx, results, next, modules[next], opts.Capabilities)
			next++
			inFlight++
		}
		if inFlight == 0 || stopped {
			break
		}
		select {
		case d := <-results:
			collect(d)
		case <-ctx.Done():
			logger.Debug("Run cancelled, not starting any more modules")
			stopped = true
		}
	}

	if inFlight > 0 {
		logger.WithField("inFlight", inFlight).Debugf("Draining running modules for up to %s", drainTimeout)
		timer := time.NewTimer(drainTimeout)
	drain:
		for inFlight > 0 {
			select {
			case d := <-results:
				collect(d)
			case <-timer.C:
				logger.WithField("abandoned", inFlight).Warn("Drain timeout reached, abandoning running modules")
				break drain
			}
		}
		timer.Stop()
	}

	report := lib.NewRunReport()
	for _, res := range done {
		if res == nil {
			continue
		}
		if err := report.Add(*res); err != nil {
			logger.WithError(err).Warn("Dropping duplicate module result")
		}
	}
	if trigger != nil {
		report.LastError = trigger
	}
	report.Duration = types.Duration(time.Since(start))

	logger.WithFields(logrus.Fields{
		"modules": report.Len(),
		"errors":  report.ErrorCount,
	}).Debug("End of test run")

	switch {
	case trigger != nil:
		return report, trigger
	case ctx.Err() != nil:
		return report, ctx.Err()
	default:
		return report, nil
	}
}

func (s *Scheduler) runModule(
	ctx context.Context, results chan<- moduleDone, index int, m *lib.Module, caps lib.Capabilities,
) {
	results <- moduleDone{index: index, result: s.Runner.Run(ctx, m, caps)}
}
