package cmd

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/wdrunner/errext"
	"github.com/liuxd6825/wdrunner/errext/exitcodes"
	"github.com/liuxd6825/wdrunner/lib"
)

func parseRunFlags(t *testing.T, args ...string) *lib.Settings {
	t.Helper()
	flags := configFlagSet()
	require.NoError(t, flags.Parse(args))
	s := getSettingsFromFlags(flags)
	return &s
}

func TestGetSettingsFromFlags(t *testing.T) {
	t.Parallel()

	s := parseRunFlags(t)
	assert.False(t, s.WebDriver.Host.Valid)
	assert.False(t, s.WebDriver.Port.Valid)
	assert.False(t, s.EnableFailFast.Valid)
	assert.False(t, s.DrainTimeout.Valid)
	assert.Nil(t, s.DesiredCapabilities)

	s = parseRunFlags(t, "--fail-fast", "--workers=4", "--port=9999", "--browser=chrome",
		"--start-process", "--server-path=/bin/chromedriver", "--drain-timeout=5s")
	assert.True(t, s.EnableFailFast.Bool)
	assert.Equal(t, int64(4), s.TestWorkers.Int64)
	assert.Equal(t, int64(9999), s.WebDriver.Port.Int64)
	assert.Equal(t, "chrome", s.DesiredCapabilities.BrowserName())
	assert.True(t, s.WebDriver.StartProcess.Bool)
	assert.Equal(t, "/bin/chromedriver", s.WebDriver.ServerPath.String)
	assert.Equal(t, 5*time.Second, s.DrainTimeout.TimeDuration())
}

func TestReadEnvConfig(t *testing.T) {
	t.Parallel()

	s, err := readEnvConfig(map[string]string{
		"WDRUNNER_HOST":          "grid.local",
		"WDRUNNER_PORT":          "4445",
		"WDRUNNER_FAIL_FAST":     "true",
		"WDRUNNER_DRAIN_TIMEOUT": "10s",
		"WDRUNNER_BROWSER":       "MicrosoftEdge",
		"UNRELATED":              "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "grid.local", s.WebDriver.Host.String)
	assert.Equal(t, int64(4445), s.WebDriver.Port.Int64)
	assert.True(t, s.EnableFailFast.Valid)
	assert.True(t, s.EnableFailFast.Bool)
	assert.Equal(t, 10*time.Second, s.DrainTimeout.TimeDuration())
	assert.Equal(t, "MicrosoftEdge", s.DesiredCapabilities.BrowserName())
	assert.False(t, s.TestWorkers.Valid)
	assert.False(t, s.WebDriver.StartProcess.Valid)

	_, err = readEnvConfig(map[string]string{"WDRUNNER_PORT": "not-a-number"})
	assert.Error(t, err)
}

func TestConfigConsolidation(t *testing.T) {
	t.Parallel()

	const yamlConfig = `
webdriver:
  host: selenium
  port: 1111
  cli_args: [--log, debug]
test_workers: 2
desiredCapabilities:
  browserName: chrome
  goog:chromeOptions:
    args: [--headless]
src_folders: [tests]
`

	testCases := []struct {
		name  string
		env   map[string]string
		args  []string
		check func(t *testing.T, s lib.Settings)
	}{
		{
			name: "file only",
			check: func(t *testing.T, s lib.Settings) {
				assert.Equal(t, "selenium", s.WebDriver.Host.String)
				assert.Equal(t, int64(1111), s.WebDriver.Port.Int64)
				assert.Equal(t, []string{"--log", "debug"}, s.WebDriver.CliArgs)
				assert.Equal(t, 2, s.Workers())
				assert.Equal(t, []string{"tests"}, s.SrcFolders)
				assert.Equal(t, "chrome", s.Capabilities().BrowserName())
				assert.Equal(t, lib.DefaultTimeout, s.WebDriver.Timeout.TimeDuration())
			},
		},
		{
			name: "env over file",
			env:  map[string]string{"WDRUNNER_PORT": "2222", "WDRUNNER_BROWSER": "firefox"},
			check: func(t *testing.T, s lib.Settings) {
				assert.Equal(t, int64(2222), s.WebDriver.Port.Int64)
				assert.Equal(t, "selenium", s.WebDriver.Host.String)
				caps := s.Capabilities()
				assert.Equal(t, "firefox", caps.BrowserName())
				assert.NotNil(t, caps["goog:chromeOptions"])
			},
		},
		{
			name: "flags over env",
			env:  map[string]string{"WDRUNNER_PORT": "2222", "WDRUNNER_WORKERS": "3"},
			args: []string{"--port", "3333"},
			check: func(t *testing.T, s lib.Settings) {
				assert.Equal(t, int64(3333), s.WebDriver.Port.Int64)
				assert.Equal(t, 3, s.Workers())
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := newGlobalTestState(t)
			require.NoError(t, afero.WriteFile(ts.FS, "/test/wdrunner.yaml", []byte(yamlConfig), 0o644))
			ts.Flags.ConfigFilePath = "/test/wdrunner.yaml"
			if tc.env != nil {
				ts.Env = tc.env
			}

			flags := configFlagSet()
			require.NoError(t, flags.Parse(tc.args))
			s, err := getConsolidatedSettings(ts.GlobalState, flags)
			require.NoError(t, err)
			tc.check(t, s)
		})
	}
}

func TestConfigDefaultFile(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	s, err := getConsolidatedSettings(ts.GlobalState, configFlagSet())
	require.NoError(t, err)
	assert.Equal(t, lib.NewSettings(), s)

	require.NoError(t, afero.WriteFile(ts.FS, "/test/wdrunner.json",
		[]byte(`{"enable_fail_fast": true, "drain_timeout": "3s"}`), 0o644))
	s, err = getConsolidatedSettings(ts.GlobalState, configFlagSet())
	require.NoError(t, err)
	assert.True(t, s.EnableFailFast.Bool)
	assert.Equal(t, 3*time.Second, s.RunOptions().DrainTimeout)
}

func TestConfigErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		setup func(ts *globalTestState)
		err   string
	}{
		{
			name:  "missing explicit file",
			setup: func(ts *globalTestState) { ts.Flags.ConfigFilePath = "/nope.json" },
			err:   `couldn't load the configuration from "/nope.json"`,
		},
		{
			name: "broken json",
			setup: func(ts *globalTestState) {
				_ = afero.WriteFile(ts.FS, "/test/wdrunner.json", []byte(`{"webdriver": `), 0o644)
			},
			err: `couldn't parse the configuration from "/test/wdrunner.json"`,
		},
		{
			name:  "bad env",
			setup: func(ts *globalTestState) { ts.Env = map[string]string{"WDRUNNER_FAIL_FAST": "maybe"} },
			err:   "WDRUNNER_FAIL_FAST",
		},
		{
			name:  "bad port",
			setup: func(ts *globalTestState) { ts.Env = map[string]string{"WDRUNNER_PORT": "70000"} },
			err:   "invalid webdriver port 70000",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := newGlobalTestState(t)
			tc.setup(ts)

			_, err := getConsolidatedSettings(ts.GlobalState, configFlagSet())
			require.ErrorContains(t, err, tc.err)
			code, ok := errext.ExitCodeOf(err)
			require.True(t, ok)
			assert.Equal(t, exitcodes.InvalidConfig, code)
		})
	}
}
