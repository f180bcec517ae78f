package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/sirupsen/logrus"

	"github.com/liuxd6825/wdrunner/internal/cdp"
	"github.com/liuxd6825/wdrunner/lib"
)

// CommandCaptureNetworkRequests is the built-in step command that logs every
// request the page sends for the rest of the module.
const CommandCaptureNetworkRequests = "captureNetworkRequests"

// StepExecutor runs declarative steps as WebDriver commands.
type StepExecutor struct {
	cmds   lib.CommandExecutor
	logger logrus.FieldLogger

	mu       sync.Mutex
	captures map[string][]*cdp.Capture
}

var (
	_ lib.TestExecutor    = &StepExecutor{}
	_ lib.SessionReleaser = &StepExecutor{}
)

// NewStepExecutor returns an executor sending commands through cmds.
func NewStepExecutor(cmds lib.CommandExecutor, logger logrus.FieldLogger) *StepExecutor {
	return &StepExecutor{cmds: cmds, logger: logger, captures: make(map[string][]*cdp.Capture)}
}

// ReleaseSession stops the network captures started for sess and waits for
// them to finish.
func (se *StepExecutor) ReleaseSession(sess *lib.SessionDescriptor) {
	se.mu.Lock()
	captures := se.captures[sess.ID]
	delete(se.captures, sess.ID)
	se.mu.Unlock()

	for _, c := range captures {
		if err := c.Close(); err != nil {
			se.logger.WithError(err).WithField("session", sess.ID).Warn("Stopping the network capture failed")
		}
	}
}

// Execute runs steps in order and stops at the first failure.
func (se *StepExecutor) Execute(ctx context.Context, sess *lib.SessionDescriptor, steps []lib.Step) error {
	for i, step := range steps {
		if err := se.step(ctx, sess, step); err != nil {
			name := step.Name
			if name == "" {
				name = describe(step)
			}
			return fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
	}
	return nil
}

func describe(step lib.Step) string {
	if step.Command != "" {
		return step.Command
	}
	return strings.TrimSpace(methodOf(step) + " " + step.Path)
}

func methodOf(step lib.Step) string {
	if step.Method != "" {
		return strings.ToUpper(step.Method)
	}
	if step.Body != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func (se *StepExecutor) step(ctx context.Context, sess *lib.SessionDescriptor, step lib.Step) error {
	switch step.Command {
	case "":
	case CommandCaptureNetworkRequests:
		return se.captureNetworkRequests(ctx, sess)
	default:
		return fmt.Errorf("unknown command %q", step.Command)
	}

	var body []byte
	if step.Body != nil {
		var err error
		if body, err = json.Marshal(step.Body); err != nil {
			return fmt.Errorf("encoding the request body: %w", err)
		}
	}
	data, err := se.cmds.Command(ctx, sess, methodOf(step), step.Path, body)
	if err != nil {
		return err
	}
	for _, e := range step.Expect {
		if err := Check(e, data); err != nil {
			return err
		}
	}
	return nil
}

// captureNetworkRequests starts a capture that runs until ReleaseSession or
// until ctx is done.
func (se *StepExecutor) captureNetworkRequests(ctx context.Context, sess *lib.SessionDescriptor) error {
	logger := se.logger.WithField("session", sess.ID)
	started := make(chan error, 1)
	capture, err := cdp.CaptureNetworkRequests(ctx, logger, sess,
		func(ev *network.EventRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"method": ev.Request.Method,
				"url":    ev.Request.URL,
				"type":   ev.Type.String(),
			}).Info("Network request")
		},
		func(err error) { started <- err },
	)
	if err != nil {
		return err
	}
	se.mu.Lock()
	se.captures[sess.ID] = append(se.captures[sess.ID], capture)
	se.mu.Unlock()

	select {
	case err := <-started:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
