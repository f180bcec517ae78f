package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mstoykov/envconfig"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"
	"gopkg.in/yaml.v3"

	"github.com/liuxd6825/wdrunner/errext"
	"github.com/liuxd6825/wdrunner/errext/exitcodes"
	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// defaultConfigFileName is looked up in the working directory when no
// config file was given.
const defaultConfigFileName = "wdrunner.json"

func configFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.Bool("fail-fast", false, "stop the run after the first module that cannot create a session")
	flags.Int64("workers", lib.DefaultWorkers, "number of modules run in parallel")
	flags.String("host", lib.DefaultHost, "WebDriver host")
	flags.Int64("port", lib.DefaultPort, "WebDriver port")
	flags.Bool("start-process", false, "start the WebDriver service from --server-path")
	flags.String("server-path", "", "path of the WebDriver executable")
	flags.String("browser", lib.DefaultBrowserName, "browserName capability")
	flags.Duration("drain-timeout", lib.DefaultDrainTimeout,
		"how long running modules may finish after a fail-fast stop")
	return flags
}

// envConfig holds the settings that can be given as environment variables.
type envConfig struct {
	Host         null.String        `envconfig:"WDRUNNER_HOST"`
	Port         null.Int           `envconfig:"WDRUNNER_PORT"`
	StartProcess null.Bool          `envconfig:"WDRUNNER_START_PROCESS"`
	ServerPath   null.String        `envconfig:"WDRUNNER_SERVER_PATH"`
	Timeout      types.NullDuration `envconfig:"WDRUNNER_TIMEOUT"`
	FailFast     null.Bool          `envconfig:"WDRUNNER_FAIL_FAST"`
	Workers      null.Int           `envconfig:"WDRUNNER_WORKERS"`
	DrainTimeout types.NullDuration `envconfig:"WDRUNNER_DRAIN_TIMEOUT"`
	Browser      null.String        `envconfig:"WDRUNNER_BROWSER"`
}

func (ec envConfig) settings() lib.Settings {
	s := lib.Settings{
		WebDriver: lib.WebDriverOptions{
			Host:         ec.Host,
			Port:         ec.Port,
			StartProcess: ec.StartProcess,
			ServerPath:   ec.ServerPath,
			Timeout:      ec.Timeout,
		},
		EnableFailFast: ec.FailFast,
		TestWorkers:    ec.Workers,
		DrainTimeout:   ec.DrainTimeout,
	}
	if ec.Browser.Valid {
		s.DesiredCapabilities = lib.Capabilities{"browserName": ec.Browser.String}
	}
	return s
}

// readEnvConfig reads the settings given as environment variables.
func readEnvConfig(env map[string]string) (lib.Settings, error) {
	var ec envConfig
	err := envconfig.Process("", &ec, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		return lib.Settings{}, err
	}
	return ec.settings(), nil
}

// getSettingsFromFlags returns the settings of every flag that was set.
func getSettingsFromFlags(flags *pflag.FlagSet) lib.Settings {
	s := lib.Settings{
		WebDriver: lib.WebDriverOptions{
			Host:         getNullString(flags, "host"),
			Port:         getNullInt64(flags, "port"),
			StartProcess: getNullBool(flags, "start-process"),
			ServerPath:   getNullString(flags, "server-path"),
		},
		EnableFailFast: getNullBool(flags, "fail-fast"),
		TestWorkers:    getNullInt64(flags, "workers"),
		DrainTimeout:   getNullDuration(flags, "drain-timeout"),
	}
	if browser := getNullString(flags, "browser"); browser.Valid {
		s.DesiredCapabilities = lib.Capabilities{"browserName": browser.String}
	}
	return s
}

// readDiskConfig reads the config file, JSON or YAML by extension. A missing
// default file is not an error, a missing explicit one is.
func readDiskConfig(gs *GlobalState) (lib.Settings, error) {
	path := gs.Flags.ConfigFilePath
	explicit := path != ""
	if !explicit {
		cwd, err := gs.Getwd()
		if err != nil {
			return lib.Settings{}, err
		}
		path = filepath.Join(cwd, defaultConfigFileName)
	}

	data, err := afero.ReadFile(gs.FS, path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return lib.Settings{}, nil
		}
		return lib.Settings{}, fmt.Errorf("couldn't load the configuration from %q: %w", path, err)
	}

	var s lib.Settings
	if err := decodeConfig(path, data, &s); err != nil {
		return lib.Settings{}, fmt.Errorf("couldn't parse the configuration from %q: %w", path, err)
	}
	gs.Logger.WithField("path", path).Debug("Configuration file loaded")
	return s, nil
}

// decodeConfig decodes JSON, or YAML going through JSON, since the nullable
// types only know how to read JSON.
func decodeConfig(path string, data []byte, s *lib.Settings) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return err
		}
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, s)
}

// getConsolidatedSettings layers the sources: defaults, config file,
// environment and finally the flags that were set.
func getConsolidatedSettings(gs *GlobalState, flags *pflag.FlagSet) (lib.Settings, error) {
	fileConf, err := readDiskConfig(gs)
	if err != nil {
		return lib.Settings{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	envConf, err := readEnvConfig(gs.Env)
	if err != nil {
		return lib.Settings{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	result := lib.NewSettings().Apply(fileConf).Apply(envConf).Apply(getSettingsFromFlags(flags))
	if err := validateSettings(result); err != nil {
		return lib.Settings{}, errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}
	return result, nil
}

func validateSettings(s lib.Settings) error {
	var errs []error
	if p := s.WebDriver.Port.Int64; p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid webdriver port %d", p))
	}
	if s.TestWorkers.Int64 < 0 {
		errs = append(errs, fmt.Errorf("test_workers must not be negative, got %d", s.TestWorkers.Int64))
	}
	return errors.Join(errs...)
}
