package log

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/wdrunner/lib/testutils"
)

func getCwd() (string, error) { return "/work", nil }

func TestFileHookFromConfigLine(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		line   string
		err    string
		levels []logrus.Level
	}{
		{line: "file=/work/run.log", levels: logrus.AllLevels},
		{line: "file=run.log,level=warning", levels: []logrus.Level{
			logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel,
		}},
		{line: "file", err: "filepath must not be empty"},
		{line: "stdout", err: "logfile configuration should be in the form"},
		{line: "file=run.log,level=loud", err: "unknown log level loud"},
		{line: "file=run.log,color=red", err: "unknown logfile config key color"},
		{line: "file=/missing/run.log", err: "provided directory '/missing' does not exist"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.line, func(t *testing.T) {
			t.Parallel()
			fs := afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll("/work", 0o755))

			hook, err := FileHookFromConfigLine(fs, getCwd, testutils.NewLogger(t), tc.line)
			if tc.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.levels, hook.Levels())
		})
	}
}

func TestFileHookWritesOnShutdown(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/work", 0o755))

	hook, err := FileHookFromConfigLine(fs, getCwd, testutils.NewLogger(t), "file=run.log")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetOutput(testutils.NewTestOutput(t))
	logger.AddHook(hook)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hook.Listen(ctx)
		close(done)
	}()

	logger.WithField("module", "login").Info("session created")
	logger.Warn("slow driver")
	cancel()
	<-done

	b, err := afero.ReadFile(fs, "/work/run.log")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `msg="session created" module=login`)
	assert.Contains(t, lines[1], "slow driver")
}
