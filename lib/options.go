package lib

import (
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/wdrunner/lib/types"
)

// Default values of the settings.
const (
	DefaultHost                = "localhost"
	DefaultPort                = 4444
	DefaultTimeout             = 60 * time.Second
	DefaultStartProcessTimeout = 10 * time.Second
	DefaultWorkers             = 1
	DefaultDrainTimeout        = 30 * time.Second
	DefaultBrowserName         = "firefox"
)

// WebDriverOptions tell how to reach, or start, the WebDriver service.
type WebDriverOptions struct {
	Host                 null.String        `json:"host"`
	Port                 null.Int           `json:"port"`
	StartProcess         null.Bool          `json:"start_process"`
	ServerPath           null.String        `json:"server_path"`
	CliArgs              []string           `json:"cli_args"`
	DefaultPathPrefix    null.String        `json:"default_path_prefix"`
	Timeout              types.NullDuration `json:"timeout"`
	StartProcessTimeout  types.NullDuration `json:"start_process_timeout"`
	MaxSessionsPerMinute null.Int           `json:"max_sessions_per_minute"`
}

// Apply overwrites the receiver's values with every valid value of opts.
func (o WebDriverOptions) Apply(opts WebDriverOptions) WebDriverOptions {
	if opts.Host.Valid {
		o.Host = opts.Host
	}
	if opts.Port.Valid {
		o.Port = opts.Port
	}
	if opts.StartProcess.Valid {
		o.StartProcess = opts.StartProcess
	}
	if opts.ServerPath.Valid {
		o.ServerPath = opts.ServerPath
	}
	if opts.CliArgs != nil {
		o.CliArgs = opts.CliArgs
	}
	if opts.DefaultPathPrefix.Valid {
		o.DefaultPathPrefix = opts.DefaultPathPrefix
	}
	if opts.Timeout.Valid {
		o.Timeout = opts.Timeout
	}
	if opts.StartProcessTimeout.Valid {
		o.StartProcessTimeout = opts.StartProcessTimeout
	}
	if opts.MaxSessionsPerMinute.Valid {
		o.MaxSessionsPerMinute = opts.MaxSessionsPerMinute
	}
	return o
}

// Settings is the complete run configuration.
type Settings struct {
	WebDriver           WebDriverOptions   `json:"webdriver"`
	EnableFailFast      null.Bool          `json:"enable_fail_fast"`
	TestWorkers         null.Int           `json:"test_workers"`
	DrainTimeout        types.NullDuration `json:"drain_timeout"`
	DesiredCapabilities Capabilities       `json:"desiredCapabilities"`
	SrcFolders          []string           `json:"src_folders"`
}

// NewSettings returns the defaults. None of the values are valid, so any
// source applied on top overrides them.
func NewSettings() Settings {
	return Settings{
		WebDriver: WebDriverOptions{
			Host:                 null.NewString(DefaultHost, false),
			Port:                 null.NewInt(DefaultPort, false),
			StartProcess:         null.NewBool(false, false),
			DefaultPathPrefix:    null.NewString("", false),
			Timeout:              types.NewNullDuration(DefaultTimeout, false),
			StartProcessTimeout:  types.NewNullDuration(DefaultStartProcessTimeout, false),
			MaxSessionsPerMinute: null.NewInt(0, false),
		},
		EnableFailFast: null.NewBool(false, false),
		TestWorkers:    null.NewInt(DefaultWorkers, false),
		DrainTimeout:   types.NewNullDuration(DefaultDrainTimeout, false),
	}
}

// Apply overwrites the receiver's values with every valid value of cfg.
// Capabilities are merged key by key.
func (s Settings) Apply(cfg Settings) Settings {
	s.WebDriver = s.WebDriver.Apply(cfg.WebDriver)
	if cfg.EnableFailFast.Valid {
		s.EnableFailFast = cfg.EnableFailFast
	}
	if cfg.TestWorkers.Valid {
		s.TestWorkers = cfg.TestWorkers
	}
	if cfg.DrainTimeout.Valid {
		s.DrainTimeout = cfg.DrainTimeout
	}
	if cfg.DesiredCapabilities != nil {
		s.DesiredCapabilities = s.DesiredCapabilities.Merge(cfg.DesiredCapabilities)
	}
	if cfg.SrcFolders != nil {
		s.SrcFolders = cfg.SrcFolders
	}
	return s
}

// Capabilities returns the desired capabilities with the default browser
// filled in.
func (s Settings) Capabilities() Capabilities {
	caps := Capabilities{"browserName": DefaultBrowserName}
	return caps.Merge(s.DesiredCapabilities)
}

// Workers returns the effective number of parallel modules, at least 1.
func (s Settings) Workers() int {
	if n := int(s.TestWorkers.Int64); n > 1 {
		return n
	}
	return 1
}

// RunOptions control a single Scheduler run.
type RunOptions struct {
	FailFast     bool
	Workers      int
	DrainTimeout time.Duration
	// Capabilities are the run-wide desired capabilities; modules may
	// override single keys.
	Capabilities Capabilities
}

// RunOptions derives scheduler options from the settings.
func (s Settings) RunOptions() RunOptions {
	return RunOptions{
		FailFast:     s.EnableFailFast.Bool,
		Workers:      s.Workers(),
		DrainTimeout: s.DrainTimeout.TimeDuration(),
		Capabilities: s.Capabilities(),
	}
}
