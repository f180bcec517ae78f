package webdriver

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/testutils"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fakedriver")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) //nolint:gosec
	return path
}

func TestStartServiceMissingPath(t *testing.T) {
	t.Parallel()

	_, err := StartService(context.Background(), testutils.NewLogger(t), ServiceOptions{
		Path: "/bin/xxxxx", Host: "127.0.0.1", Port: freePort(t),
	})

	var tf *sessionerr.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, sessionerr.FailureProcessSpawn, tf.Kind)
	assert.True(t, tf.PathNotFound)
	assert.Equal(t, "/bin/xxxxx", tf.Path)
}

func TestStartServiceTerminatedEarly(t *testing.T) {
	t.Parallel()

	path := writeScript(t, "exit 9")
	_, err := StartService(context.Background(), testutils.NewLogger(t), ServiceOptions{
		Path: path, Host: "127.0.0.1", Port: freePort(t), StartTimeout: 10 * time.Second,
	})

	var tf *sessionerr.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.False(t, tf.PathNotFound)
	require.True(t, tf.ExitStatus.Valid)
	assert.Equal(t, int64(9), tf.ExitStatus.Int64)

	serr := sessionerr.Classify(err, sessionerr.Context{Driver: "GeckoDriver", ServerPath: path})
	assert.Equal(t, "An error occurred while creating a new GeckoDriver session: "+
		"[Error] Server terminated early with status 9", serr.Message)
	assert.True(t, strings.HasPrefix(serr.DetailedErr, " Verify if GeckoDriver is configured correctly; using:"))
}

func TestStartServiceTimeout(t *testing.T) {
	t.Parallel()

	path := writeScript(t, "exec sleep 30")
	start := time.Now()
	_, err := StartService(context.Background(), testutils.NewLogger(t), ServiceOptions{
		Path: path, Host: "127.0.0.1", Port: freePort(t), StartTimeout: 300 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrStartTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestManagedTransportCachesStartFailure(t *testing.T) {
	t.Parallel()

	settings := lib.NewSettings()
	settings.WebDriver.StartProcess.SetValid(true)
	settings.WebDriver.ServerPath.SetValid("/bin/xxxxx")
	settings.WebDriver.Port.SetValid(int64(freePort(t)))

	mt := NewTransport(testutils.NewLogger(t), settings)
	defer func() { require.NoError(t, mt.Close()) }()

	_, err1 := mt.CreateSession(context.Background(), lib.Capabilities{})
	_, err2 := mt.CreateSession(context.Background(), lib.Capabilities{})
	require.Error(t, err1)
	assert.Same(t, err1, err2)

	var tf *sessionerr.TransportFailure
	require.ErrorAs(t, err2, &tf)
	assert.True(t, tf.PathNotFound)
}

func TestManagedTransportWithoutProcess(t *testing.T) {
	t.Parallel()

	settings := lib.NewSettings()
	settings.WebDriver.Host.SetValid("127.0.0.1")
	settings.WebDriver.Port.SetValid(int64(freePort(t)))

	mt := NewTransport(testutils.NewLogger(t), settings)
	_, err := mt.CreateSession(context.Background(), lib.Capabilities{})

	var tf *sessionerr.TransportFailure
	require.ErrorAs(t, err, &tf)
	assert.Equal(t, sessionerr.CodeConnRefused, tf.Code)
	require.NoError(t, mt.Close())
}

func TestManagedTransportWaitHonoursContext(t *testing.T) {
	t.Parallel()

	settings := lib.NewSettings()
	settings.WebDriver.StartProcess.SetValid(true)
	settings.WebDriver.ServerPath.SetValid(writeScript(t, "exec sleep 30"))
	settings.WebDriver.Host.SetValid("127.0.0.1")
	settings.WebDriver.Port.SetValid(int64(freePort(t)))
	settings.WebDriver.StartProcessTimeout = types.NullDurationFrom(20 * time.Second)

	mt := NewTransport(testutils.NewLogger(t), settings)
	defer func() { require.NoError(t, mt.Close()) }()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := mt.CreateSession(firstCtx, lib.Capabilities{})
		firstErr <- err
	}()

	require.Eventually(t, func() bool {
		mt.mu.Lock()
		defer mt.mu.Unlock()
		return mt.starting != nil
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := mt.CreateSession(ctx, lib.Capabilities{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	cancelFirst()
	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("the first start did not end after its context was cancelled")
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	assert.Nil(t, mt.startErr)
	assert.Nil(t, mt.starting)
}
