package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/wdrunner/internal/loader"
	"github.com/liuxd6825/wdrunner/internal/webdriver"
	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
)

// ErrNoSources is returned when neither the arguments nor the settings name
// anything to run.
var ErrNoSources = errors.New("no test sources given")

// RunArgs are the per-invocation arguments of a run.
type RunArgs struct {
	// Source are the files and folders to load modules from. Settings.SrcFolders
	// is used when empty.
	Source []string
	// FailFast overrides Settings.EnableFailFast when valid.
	FailFast null.Bool
}

// Deps are the collaborators of a run. Only Logger and FS are required.
type Deps struct {
	Logger logrus.FieldLogger
	FS     afero.Fs

	// Transport defaults to a webdriver transport built from the settings,
	// which is closed when the run ends.
	Transport lib.Transport
	// Executor defaults to a webdriver step executor over Transport, when
	// Transport can send commands.
	Executor lib.TestExecutor
	Tracer   trace.Tracer

	// Reporter receives the report before RunTests returns, whether the run
	// failed fast or not.
	Reporter func(*lib.RunReport)
}

// RunTests loads the modules named by args, runs them with the given settings
// and hands the report to deps.Reporter. The error is the fail-fast trigger
// (a *sessionerr.Error), a cancelled context, or a problem loading modules.
func RunTests(ctx context.Context, args RunArgs, settings *lib.Settings, deps Deps) (*lib.RunReport, error) {
	if settings == nil {
		s := lib.NewSettings()
		settings = &s
	}
	opts := settings.RunOptions()
	if args.FailFast.Valid {
		opts.FailFast = args.FailFast.Bool
	}

	sources := args.Source
	if len(sources) == 0 {
		sources = settings.SrcFolders
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	modules, err := loader.Load(deps.FS, sources)
	if err != nil {
		return nil, fmt.Errorf("loading test modules: %w", err)
	}
	deps.Logger.WithField("modules", len(modules)).Debug("Test modules loaded")

	transport, executor := deps.Transport, deps.Executor
	if transport == nil {
		mt := webdriver.NewTransport(deps.Logger, *settings)
		defer func() {
			if cerr := mt.Close(); cerr != nil {
				deps.Logger.WithError(cerr).Warn("Stopping the WebDriver service failed")
			}
		}()
		transport = mt
	}
	if executor == nil {
		if cmds, ok := transport.(lib.CommandExecutor); ok {
			executor = webdriver.NewStepExecutor(cmds, deps.Logger)
		}
	}

	scheduler := &Scheduler{
		Runner: &ModuleRunner{
			Transport:    transport,
			Executor:     executor,
			Logger:       deps.Logger,
			Tracer:       deps.Tracer,
			ErrorContext: ErrorContext(*settings),
		},
		Logger: deps.Logger,
	}

	report, runErr := scheduler.Run(ctx, modules, opts)
	if deps.Reporter != nil {
		deps.Reporter(report)
	}
	return report, runErr
}

// ErrorContext describes the configured WebDriver service for the error
// classifier.
func ErrorContext(s lib.Settings) sessionerr.Context {
	wd := s.WebDriver
	return sessionerr.Context{
		Tool:         sessionerr.DefaultTool,
		Host:         wd.Host.String,
		Port:         int(wd.Port.Int64),
		ServerPath:   wd.ServerPath.String,
		StartProcess: wd.StartProcess.Bool,
		// Effective values, defaults included.
		Settings: map[string]interface{}{
			"host":                    wd.Host.String,
			"port":                    wd.Port.Int64,
			"start_process":           wd.StartProcess.Bool,
			"server_path":             wd.ServerPath.String,
			"cli_args":                wd.CliArgs,
			"default_path_prefix":     wd.DefaultPathPrefix.String,
			"timeout":                 wd.Timeout.String(),
			"start_process_timeout":   wd.StartProcessTimeout.String(),
			"max_sessions_per_minute": wd.MaxSessionsPerMinute.Int64,
		},
	}
}
