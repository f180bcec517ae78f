package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/liuxd6825/wdrunner/errext"
	"github.com/liuxd6825/wdrunner/errext/exitcodes"
	"github.com/liuxd6825/wdrunner/internal/execution"
	"github.com/liuxd6825/wdrunner/internal/lib/trace"
	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
)

const tracesShutdownTimeout = 5 * time.Second

// cmdRun handles the `wdrunner run` sub-command.
type cmdRun struct {
	gs            *GlobalState
	summaryExport string
}

func getCmdRun(gs *GlobalState) *cobra.Command {
	c := &cmdRun{gs: gs}

	runCmd := &cobra.Command{
		Use:   "run [flags] [path...]",
		Short: "Run test modules",
		Long: `Run test modules.

Every YAML file under the given paths is a test module and gets its own
browser session. Without paths, the src_folders of the configuration are used.`,
		Example: `  # Run every module under ./tests against a local Selenium server
  $ wdrunner run tests/

  # Start geckodriver and stop after the first session failure
  $ wdrunner run --start-process --server-path=/usr/bin/geckodriver --fail-fast tests/`,
		RunE: c.run,
	}

	runCmd.Flags().SortFlags = false
	runCmd.Flags().AddFlagSet(configFlagSet())
	runCmd.Flags().StringVar(&c.summaryExport, "summary-export", "", "output the run report to a JSON file")
	return runCmd
}

func (c *cmdRun) run(cmd *cobra.Command, args []string) error {
	gs := c.gs
	logger := gs.Logger

	settings, err := getConsolidatedSettings(gs, cmd.Flags())
	if err != nil {
		return err
	}

	tp, err := trace.TracerProviderFromConfigLine(gs.Ctx, gs.Flags.TracesOutput)
	if err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracesShutdownTimeout)
		defer cancel()
		if serr := tp.Shutdown(ctx); serr != nil {
			logger.WithError(serr).Warn("Flushing the traces failed")
		}
	}()

	runCtx, runCancel := context.WithCancel(gs.Ctx)
	defer runCancel()
	var aborted atomic.Bool
	stopSignalHandling := handleTestAbortSignals(gs, func(sig os.Signal) {
		logger.WithField("sig", sig).Debug("Stopping wdrunner in response to signal...")
		aborted.Store(true)
		runCancel()
	}, nil)
	defer stopSignalHandling()

	report, err := execution.RunTests(runCtx, execution.RunArgs{Source: args}, &settings, execution.Deps{
		Logger:   logger,
		FS:       gs.FS,
		Tracer:   tp.Tracer("wdrunner"),
		Reporter: c.report,
	})

	var serr *sessionerr.Error
	switch {
	case err == nil:
	case errors.As(err, &serr):
		return err
	case aborted.Load() && errors.Is(err, context.Canceled):
		return &errext.AbortError{Reason: errext.AbortedBySignal}
	case report == nil:
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	default:
		return errext.WithExitCodeIfNone(err, exitcodes.GenericEngine)
	}

	if report.HasFailures() {
		return errext.WithExitCodeIfNone(
			fmt.Errorf("%d test case(s) failed and %d error(s) occurred", report.Failed, report.ErrorCount),
			exitcodes.TestsFailed,
		)
	}
	return nil
}

// report prints the summary and writes the export file. It runs before the
// run's outcome is turned into an exit code.
func (c *cmdRun) report(report *lib.RunReport) {
	gs := c.gs
	colorize := !gs.Flags.NoColor && gs.Stdout.IsTTY
	width := 0 // no cut when piped
	if gs.Stdout.IsTTY {
		width = gs.Stdout.TermWidth()
	}
	printToStdout(gs, renderSummary(report, colorize, width))
	if c.summaryExport == "" {
		return
	}
	if err := exportSummary(gs.FS, c.summaryExport, report); err != nil {
		gs.Logger.WithError(err).Error("Exporting the summary failed")
		return
	}
	gs.Logger.WithField("path", c.summaryExport).Debug("Run report exported")
}

// handleTestAbortSignals traps interrupts and calls gracefulStopHandler on the
// first one. A second signal exits the process right away.
func handleTestAbortSignals(gs *GlobalState, gracefulStopHandler, onHardStop func(os.Signal)) (stop func()) {
	gs.Logger.Debug("Trapping interrupt signals so wdrunner can handle them gracefully...")
	sigC := make(chan os.Signal, 2)
	done := make(chan struct{})
	gs.SignalNotify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigC:
			gracefulStopHandler(sig)
		case <-done:
			return
		}

		select {
		case sig := <-sigC:
			if onHardStop != nil {
				onHardStop(sig)
			}
			gs.OSExit(int(exitcodes.ExternalAbort))
		case <-done:
			return
		}
	}()

	return func() {
		gs.Logger.Debug("Releasing signal trap...")
		close(done)
		gs.SignalStop(sigC)
	}
}
