package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const defaultTermWidth = 80

// GlobalFlags are the flags and environment values that apply to every
// sub-command.
type GlobalFlags struct {
	ConfigFilePath string
	LogOutput      string
	LogFormat      string
	TracesOutput   string
	NoColor        bool
	Verbose        bool
	Quiet          bool
}

// GetDefaultFlags returns the default global flags.
func GetDefaultFlags() GlobalFlags {
	return GlobalFlags{
		LogOutput:    "stderr",
		TracesOutput: "none",
	}
}

func consolidateGlobalFlags(defaultFlags GlobalFlags, env map[string]string) GlobalFlags {
	result := defaultFlags

	if val, ok := env["WDRUNNER_CONFIG"]; ok {
		result.ConfigFilePath = val
	}
	if val, ok := env["WDRUNNER_LOG_OUTPUT"]; ok {
		result.LogOutput = val
	}
	if val, ok := env["WDRUNNER_LOG_FORMAT"]; ok {
		result.LogFormat = val
	}
	if val, ok := env["WDRUNNER_TRACES_OUTPUT"]; ok {
		result.TracesOutput = val
	}
	if env["WDRUNNER_NO_COLOR"] != "" {
		result.NoColor = true
	}
	// https://no-color.org/: even an empty value disables colors.
	if _, ok := env["NO_COLOR"]; ok {
		result.NoColor = true
	}
	return result
}

// ConsoleWriter syncs writes to stdout and stderr and knows whether it
// writes to a terminal.
type ConsoleWriter struct {
	io.Writer
	IsTTY bool
	Mutex *sync.Mutex

	fd uintptr
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	return w.Writer.Write(p)
}

// TermWidth returns the width of the terminal, or 80 when the output is not
// a terminal or the lookup fails.
func (w *ConsoleWriter) TermWidth() int {
	if !w.IsTTY {
		return defaultTermWidth
	}
	width, _, err := term.GetSize(int(w.fd))
	if err != nil || width <= 0 {
		return defaultTermWidth
	}
	return width
}

func newConsoleWriter(f *os.File, mx *sync.Mutex, termType string, noColor bool) *ConsoleWriter {
	isTTY := termType != "dumb" && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
	var w io.Writer = colorable.NewColorable(f)
	if noColor || !isTTY {
		w = colorable.NewNonColorable(f)
	}
	return &ConsoleWriter{Writer: w, IsTTY: isTTY, Mutex: mx, fd: f.Fd()}
}

// GlobalState holds everything a command touches in the outside world, so
// tests can replace it wholesale.
type GlobalState struct {
	Ctx context.Context

	FS         afero.Fs
	Getwd      func() (string, error)
	BinaryName string
	CmdArgs    []string
	Env        map[string]string

	DefaultFlags, Flags GlobalFlags

	OutMutex       *sync.Mutex
	Stdout, Stderr *ConsoleWriter
	Stdin          io.Reader

	OSExit       func(int)
	SignalNotify func(chan<- os.Signal, ...os.Signal)
	SignalStop   func(chan<- os.Signal)

	Logger         *logrus.Logger
	FallbackLogger logrus.FieldLogger
}

// NewGlobalState returns the state of the real process.
func NewGlobalState(ctx context.Context) *GlobalState {
	env := BuildEnvMap(os.Environ())
	defaultFlags := GetDefaultFlags()
	flags := consolidateGlobalFlags(defaultFlags, env)

	outMutex := &sync.Mutex{}
	stdout := newConsoleWriter(os.Stdout, outMutex, env["TERM"], flags.NoColor)
	stderr := newConsoleWriter(os.Stderr, outMutex, env["TERM"], flags.NoColor)

	logger := &logrus.Logger{
		Out: stderr,
		Formatter: &logrus.TextFormatter{
			ForceColors:   stderr.IsTTY,
			DisableColors: !stderr.IsTTY || flags.NoColor,
		},
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
	}

	return &GlobalState{
		Ctx:          ctx,
		FS:           afero.NewOsFs(),
		Getwd:        os.Getwd,
		BinaryName:   filepath.Base(os.Args[0]),
		CmdArgs:      os.Args,
		Env:          env,
		DefaultFlags: defaultFlags,
		Flags:        flags,
		OutMutex:     outMutex,
		Stdout:       stdout,
		Stderr:       stderr,
		Stdin:        os.Stdin,
		OSExit:       os.Exit,
		SignalNotify: signal.Notify,
		SignalStop:   signal.Stop,
		Logger:       logger,
		FallbackLogger: &logrus.Logger{
			Out:       stderr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
	}
}

// BuildEnvMap returns a map from raw environment KEY=value pairs.
func BuildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return env
}
