package webdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/guregu/null.v3"

	"github.com/liuxd6825/wdrunner/lib/sessionerr"
)

// ErrStartTimeout is the cause of a process-spawn failure when the service
// did not accept connections in time.
var ErrStartTimeout = errors.New("timed out waiting for the WebDriver service to accept connections")

const portPollInterval = 50 * time.Millisecond

// ServiceOptions describe a WebDriver executable to start.
type ServiceOptions struct {
	Path         string
	Host         string
	Port         int
	Args         []string
	StartTimeout time.Duration
}

// Service is a running WebDriver executable such as geckodriver or
// chromedriver.
type Service struct {
	opts   ServiceOptions
	logger logrus.FieldLogger
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	output *tailBuffer
}

// StartService starts the executable with --port and the extra arguments and
// waits until the port accepts TCP connections. The process lives until Stop
// is called; ctx only bounds the wait.
func StartService(ctx context.Context, logger logrus.FieldLogger, opts ServiceOptions) (*Service, error) {
	logger = logger.WithFields(logrus.Fields{"component": "webdriver-service", "path": opts.Path})
	spawnFailure := func(err error) *sessionerr.TransportFailure {
		return &sessionerr.TransportFailure{Kind: sessionerr.FailureProcessSpawn, Path: opts.Path, Err: err}
	}

	path, err := exec.LookPath(opts.Path)
	if err != nil {
		f := spawnFailure(err)
		f.PathNotFound = errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound)
		return nil, f
	}

	args := append([]string{"--port=" + strconv.Itoa(opts.Port)}, opts.Args...)
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, path, args...) //nolint:gosec
	out := &tailBuffer{max: 4 << 10}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		f := spawnFailure(err)
		f.PathNotFound = errors.Is(err, fs.ErrNotExist)
		return nil, f
	}
	logger.WithField("pid", cmd.Process.Pid).Debug("WebDriver service started")

	s := &Service{
		opts:   opts,
		logger: logger,
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
		output: out,
	}
	go func() {
		defer close(s.done)
		if err := cmd.Wait(); err != nil {
			logger.WithError(err).Debug("WebDriver service exited")
		}
	}()

	if err := s.waitForPort(ctx); err != nil {
		_ = s.Stop()
		return nil, err
	}
	return s, nil
}

func (s *Service) waitForPort(ctx context.Context) error {
	timeout := s.opts.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(portPollInterval)
	defer ticker.Stop()

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	for {
		if conn, err := net.DialTimeout("tcp", addr, portPollInterval); err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-s.done:
			status := s.cmd.ProcessState.ExitCode()
			s.logger.WithField("output", s.output.String()).Debugf("WebDriver service terminated early with status %d", status)
			return &sessionerr.TransportFailure{
				Kind:       sessionerr.FailureProcessSpawn,
				Path:       s.opts.Path,
				ExitStatus: null.IntFrom(int64(status)),
				Err:        fmt.Errorf("process exited: %s", s.cmd.ProcessState),
			}
		case <-deadline.C:
			return &sessionerr.TransportFailure{
				Kind: sessionerr.FailureProcessSpawn,
				Path: s.opts.Path,
				Err:  fmt.Errorf("%w on %s after %s", ErrStartTimeout, addr, timeout),
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop kills the process and waits for it to exit.
func (s *Service) Stop() error {
	s.cancel()
	<-s.done
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (tb *tailBuffer) Write(p []byte) (int, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.buf.Write(p)
	if over := tb.buf.Len() - tb.max; over > 0 {
		tb.buf.Next(over)
	}
	return len(p), nil
}

func (tb *tailBuffer) String() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.buf.String()
}
