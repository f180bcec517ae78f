// Package log has the logrus hooks wdrunner can send its logs to besides the
// terminal.
package log

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/liuxd6825/wdrunner/internal/lib/strvals"
)

// AsyncHook is a logrus hook that does its work on a separate goroutine.
// Listen must be running for the hook to make progress and it returns once
// ctx is done and everything queued was flushed.
type AsyncHook interface {
	logrus.Hook
	Listen(ctx context.Context)
}

const fileQueueSize = 100

type fileHook struct {
	fs       afero.Fs
	fallback logrus.FieldLogger
	lines    chan []byte
	path     string
	levels   []logrus.Level

	w  io.WriteCloser
	bw *bufio.Writer
}

// FileHookFromConfigLine parses a `file=path[,level=lvl]` line and opens the
// file for appending. Relative paths are resolved against getCwd.
func FileHookFromConfigLine(
	fsys afero.Fs, getCwd func() (string, error), fallback logrus.FieldLogger, line string,
) (AsyncHook, error) {
	if out, _, _ := strings.Cut(line, "="); out != "file" {
		return nil, fmt.Errorf("logfile configuration should be in the form `file=path-to-local-file` but is `%s`", line)
	}

	h := &fileHook{
		fs:       fsys,
		fallback: fallback,
		levels:   logrus.AllLevels,
		lines:    make(chan []byte, fileQueueSize),
	}

	tokens, err := strvals.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("error while parsing logfile configuration: %w", err)
	}
	for _, t := range tokens {
		switch t.Key {
		case "file":
			if t.Value == "" {
				return nil, errors.New("filepath must not be empty")
			}
			h.path = t.Value
		case "level":
			if h.levels, err = levelsUpTo(t.Value); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown logfile config key %s", t.Key)
		}
	}

	if err := h.open(getCwd); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *fileHook) open(getCwd func() (string, error)) error {
	path := h.path
	if !filepath.IsAbs(path) {
		cwd, err := getCwd()
		if err != nil {
			return fmt.Errorf("'%s' is a relative path but could not determine CWD: %w", path, err)
		}
		path = filepath.Join(cwd, path)
	}

	if _, err := h.fs.Stat(filepath.Dir(path)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("provided directory '%s' does not exist", filepath.Dir(path))
	}

	f, err := h.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open logfile %s: %w", path, err)
	}
	h.w = f
	h.bw = bufio.NewWriter(f)
	return nil
}

func (h *fileHook) write(line []byte) {
	if _, err := h.bw.Write(line); err != nil {
		h.fallback.WithError(err).Error("failed to write a log message to the logfile")
	}
}

// Listen writes queued lines until ctx is done, then flushes and closes the
// file.
func (h *fileHook) Listen(ctx context.Context) {
	for {
		select {
		case line := <-h.lines:
			h.write(line)
		case <-ctx.Done():
			// Nothing logs after ctx is done, but the queue may still hold lines.
			for len(h.lines) > 0 {
				h.write(<-h.lines)
			}
			if err := h.bw.Flush(); err != nil {
				h.fallback.WithError(err).Error("failed to flush the logfile")
			}
			if err := h.w.Close(); err != nil {
				h.fallback.WithError(err).Error("failed to close the logfile")
			}
			return
		}
	}
}

// Fire queues the formatted entry.
func (h *fileHook) Fire(entry *logrus.Entry) error {
	b, err := entry.Bytes()
	if err != nil {
		return fmt.Errorf("failed to get a log entry bytes: %w", err)
	}
	h.lines <- b
	return nil
}

// Levels returns the levels the hook is enabled for.
func (h *fileHook) Levels() []logrus.Level {
	return h.levels
}
