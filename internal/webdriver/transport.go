package webdriver

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/wdrunner/lib"
)

// ManagedTransport is a Client that, when configured to, starts the
// WebDriver service on first use and stops it on Close. The service is
// shared by every session of a run.
type ManagedTransport struct {
	client       *Client
	startProcess bool
	svcOpts      ServiceOptions
	logger       logrus.FieldLogger

	mu       sync.Mutex
	svc      *Service
	startErr error
	starting chan struct{} // closed when the start in flight is over
	closed   bool
}

var (
	_ lib.Transport       = &ManagedTransport{}
	_ lib.CommandExecutor = &ManagedTransport{}
)

// NewTransport builds the transport described by the webdriver settings.
func NewTransport(logger logrus.FieldLogger, settings lib.Settings) *ManagedTransport {
	wd := settings.WebDriver
	host, port := wd.Host.String, int(wd.Port.Int64)
	return &ManagedTransport{
		client: NewClient(logger, ClientOptions{
			Host:                 host,
			Port:                 port,
			PathPrefix:           wd.DefaultPathPrefix.String,
			Timeout:              wd.Timeout.TimeDuration(),
			MaxSessionsPerMinute: int(wd.MaxSessionsPerMinute.Int64),
		}),
		startProcess: wd.StartProcess.Bool,
		svcOpts: ServiceOptions{
			Path:         wd.ServerPath.String,
			Host:         host,
			Port:         port,
			Args:         wd.CliArgs,
			StartTimeout: wd.StartProcessTimeout.TimeDuration(),
		},
		logger: logger,
	}
}

// errClosed is returned for sessions requested after Close.
var errClosed = errors.New("the WebDriver transport is closed")

// ensureService starts the service once. The lock is not held while the
// service starts, so callers waiting for another module's start still honour
// their own ctx.
func (t *ManagedTransport) ensureService(ctx context.Context) error {
	if !t.startProcess {
		return nil
	}
	for {
		t.mu.Lock()
		switch {
		case t.closed:
			t.mu.Unlock()
			return errClosed
		case t.svc != nil:
			t.mu.Unlock()
			return nil
		case t.startErr != nil:
			err := t.startErr
			t.mu.Unlock()
			return err
		}
		if t.starting == nil {
			return t.startService(ctx)
		}
		wait := t.starting
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// startService is called with t.mu held and returns with it released.
func (t *ManagedTransport) startService(ctx context.Context) error {
	done := make(chan struct{})
	t.starting = done
	t.mu.Unlock()

	svc, err := StartService(ctx, t.logger, t.svcOpts)

	t.mu.Lock()
	defer t.mu.Unlock()
	defer close(done)
	t.starting = nil
	switch {
	case err != nil:
		// A cancelled wait says nothing about the service; let the next
		// module try again.
		if ctx.Err() == nil {
			t.startErr = err
		}
		return err
	case t.closed:
		_ = svc.Stop()
		return errClosed
	}
	t.svc = svc
	return nil
}

// CreateSession starts the service if needed and creates a session. A
// failed service start is reported to every caller.
func (t *ManagedTransport) CreateSession(ctx context.Context, caps lib.Capabilities) (*lib.SessionDescriptor, error) {
	if err := t.ensureService(ctx); err != nil {
		return nil, err
	}
	return t.client.CreateSession(ctx, caps)
}

// DeleteSession deletes the session; failures are logged.
func (t *ManagedTransport) DeleteSession(ctx context.Context, sess *lib.SessionDescriptor) {
	t.client.DeleteSession(ctx, sess)
}

// Command sends a command within sess.
func (t *ManagedTransport) Command(
	ctx context.Context, sess *lib.SessionDescriptor, method, path string, body []byte,
) ([]byte, error) {
	return t.client.Command(ctx, sess, method, path, body)
}

// Close stops the service, if it was started.
func (t *ManagedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.svc == nil {
		return nil
	}
	err := t.svc.Stop()
	t.svc = nil
	return err
}
