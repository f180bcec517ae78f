package cmd

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/liuxd6825/wdrunner/errext/exitcodes"
	"github.com/liuxd6825/wdrunner/lib/consts"
)

func TestRootCommandHelpDisplayCommands(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name                  string
		extraArgs             []string
		wantStdoutContains    string
		wantStdoutNotContains string
	}{
		{
			name:               "should have run command",
			wantStdoutContains: "  run         Run test modules",
		},
		{
			name:               "should have completion command",
			wantStdoutContains: "  completion  Generate the autocompletion script for the specified shell",
		},
		{
			name:               "should list the global flags",
			wantStdoutContains: "--traces-output",
		},
		{
			name:                  "run help shows run flags",
			extraArgs:             []string{"run"},
			wantStdoutContains:    "--drain-timeout",
			wantStdoutNotContains: "completion",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newGlobalTestState(t)
			ts.CmdArgs = append([]string{"wdrunner", "help"}, tc.extraArgs...)

			newRootCommand(ts.GlobalState).execute()

			if tc.wantStdoutContains != "" {
				assert.Contains(t, ts.Stdout.String(), tc.wantStdoutContains)
			}
			if tc.wantStdoutNotContains != "" {
				assert.NotContains(t, ts.Stdout.String(), tc.wantStdoutNotContains)
			}
		})
	}
}

func TestRootCommandVersion(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	ts.CmdArgs = []string{"wdrunner", "--version"}

	newRootCommand(ts.GlobalState).execute()

	assert.Equal(t, "wdrunner v"+consts.Version+"\n", ts.Stdout.String())
}

func TestRootCommandLogsToFile(t *testing.T) {
	t.Parallel()

	ts := newGlobalTestState(t)
	ts.CmdArgs = []string{"wdrunner", "--log-output", "file=./wdrunner.log", "--log-format", "json", "run"}
	ts.ExpectedExitCode = int(exitcodes.InvalidConfig)

	newRootCommand(ts.GlobalState).execute()

	data, err := afero.ReadFile(ts.FS, "/test/wdrunner.log")
	require.NoError(t, err)
	msg := gjson.GetBytes(data, `..#(level=="error").msg`)
	require.True(t, msg.Exists(), string(data))
	assert.Contains(t, msg.String(), "no test sources given")
	assert.Empty(t, ts.Stderr.String())
}

func TestRawFormatter(t *testing.T) {
	t.Parallel()

	out, err := RawFormatter{}.Format(&logrus.Entry{Message: "plain", Data: logrus.Fields{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, "plain\n", string(out))
}

func TestRootCommandLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		flag  string
		level logrus.Level
	}{
		{"--quiet", logrus.WarnLevel},
		{"-v", logrus.DebugLevel},
		{"--log-format=raw", logrus.InfoLevel},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.flag, func(t *testing.T) {
			t.Parallel()
			ts := newGlobalTestState(t)
			ts.CmdArgs = []string{"wdrunner", tc.flag, "run"}
			ts.ExpectedExitCode = int(exitcodes.InvalidConfig)

			newRootCommand(ts.GlobalState).execute()

			assert.Equal(t, tc.level, ts.Logger.GetLevel())
		})
	}
}
