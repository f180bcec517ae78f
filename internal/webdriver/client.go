// Package webdriver talks to a W3C WebDriver (or legacy JSON wire) service
// over HTTP and can start that service as a local process.
package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/consts"
	"github.com/liuxd6825/wdrunner/lib/sessionerr"
)

// Network failure codes besides sessionerr.CodeConnRefused.
const (
	CodeTimedOut  = "ETIMEDOUT"
	CodeConnReset = "ECONNRESET"
	CodeNotFound  = "ENOTFOUND"
)

const maxResponseSize = 16 << 20

// ClientOptions configure a Client.
type ClientOptions struct {
	Host string
	Port int
	// PathPrefix is prepended to every command path, e.g. "/wd/hub".
	PathPrefix string
	Timeout    time.Duration
	// MaxSessionsPerMinute limits session creation; 0 means unlimited.
	MaxSessionsPerMinute int
}

// Client is an HTTP WebDriver client. It is safe for concurrent use.
type Client struct {
	opts       ClientOptions
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

var (
	_ lib.Transport       = &Client{}
	_ lib.CommandExecutor = &Client{}
)

// NewClient returns a client for the WebDriver service at opts.Host:opts.Port.
func NewClient(logger logrus.FieldLogger, opts ClientOptions) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.MaxSessionsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.MaxSessionsPerMinute)), 1)
	}
	prefix := strings.TrimSuffix(opts.PathPrefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Client{
		opts:       opts,
		baseURL:    "http://" + net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)) + prefix,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		logger:     logger.WithField("component", "webdriver-client"),
	}
}

// CreateSession asks the remote end for a new session with caps. Failures
// are *sessionerr.TransportFailure values.
func (c *Client) CreateSession(ctx context.Context, caps lib.Capabilities) (*lib.SessionDescriptor, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for the session rate limiter: %w", err)
	}

	body, err := json.Marshal(map[string]interface{}{
		"capabilities":        map[string]interface{}{"alwaysMatch": caps},
		"desiredCapabilities": caps,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding capabilities: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/session", body)
	if err != nil {
		return nil, err
	}

	sess := &lib.SessionDescriptor{}
	value := gjson.GetBytes(data, "value")
	if id := value.Get("sessionId"); id.Exists() {
		sess.ID = id.String()
		sess.Capabilities = capabilitiesFrom(value.Get("capabilities"))
	} else {
		// legacy JSON wire protocol
		sess.ID = gjson.GetBytes(data, "sessionId").String()
		sess.Capabilities = capabilitiesFrom(value)
	}
	if sess.ID == "" {
		return nil, &sessionerr.TransportFailure{
			Kind:          sessionerr.FailureProtocol,
			HTTPStatus:    http.StatusOK,
			RemoteMessage: "response has no session id",
		}
	}
	if sess.Capabilities.BrowserName() == "" && caps.BrowserName() != "" {
		sess.Capabilities["browserName"] = caps.BrowserName()
	}

	c.logger.WithField("session", sess.ID).Debug("Session created")
	return sess, nil
}

func capabilitiesFrom(r gjson.Result) lib.Capabilities {
	caps := lib.Capabilities{}
	if m, ok := r.Value().(map[string]interface{}); ok {
		for k, v := range m {
			caps[k] = v
		}
	}
	return caps
}

// DeleteSession ends the session; failures are logged only.
func (c *Client) DeleteSession(ctx context.Context, sess *lib.SessionDescriptor) {
	if sess == nil || sess.ID == "" {
		return
	}
	if _, err := c.do(ctx, http.MethodDelete, "/session/"+url.PathEscape(sess.ID), nil); err != nil {
		c.logger.WithError(err).WithField("session", sess.ID).Warn("Deleting the session failed")
	}
}

// Command sends a command within sess. path is relative to the session URL.
func (c *Client) Command(
	ctx context.Context, sess *lib.SessionDescriptor, method, path string, body []byte,
) ([]byte, error) {
	if sess == nil || sess.ID == "" {
		return nil, errors.New("no active session")
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if body == nil && method == http.MethodPost {
		body = []byte("{}")
	}
	return c.do(ctx, method, "/session/"+url.PathEscape(sess.ID)+path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", consts.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	c.logger.WithFields(logrus.Fields{"method": method, "path": path}).Debug("Sending command")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.networkFailure(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, c.networkFailure(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, protocolFailure(resp.StatusCode, data)
	}
	// Some legacy servers answer 200 with a non-zero status.
	if st := gjson.GetBytes(data, "status"); st.Exists() && st.Int() != 0 {
		return nil, protocolFailure(resp.StatusCode, data)
	}
	return data, nil
}

func protocolFailure(status int, data []byte) *sessionerr.TransportFailure {
	f := &sessionerr.TransportFailure{Kind: sessionerr.FailureProtocol, HTTPStatus: status}
	for _, prefix := range []string{"value.", ""} {
		if e := gjson.GetBytes(data, prefix+"error"); e.Type == gjson.String {
			f.RemoteError = e.String()
			f.RemoteMessage = gjson.GetBytes(data, prefix+"message").String()
			return f
		}
	}
	f.RemoteMessage = gjson.GetBytes(data, "value.message").String()
	if f.RemoteMessage == "" {
		f.RemoteMessage = strings.TrimSpace(string(data))
	}
	return f
}

func (c *Client) networkFailure(err error) *sessionerr.TransportFailure {
	return &sessionerr.TransportFailure{
		Kind: sessionerr.FailureNetwork,
		Code: networkCode(err),
		Host: c.opts.Host,
		Port: c.opts.Port,
		Err:  err,
	}
}

// networkCode maps a dial or read error to the usual errno-style code.
func networkCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return sessionerr.CodeConnRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, context.DeadlineExceeded):
		return CodeTimedOut
	case errors.As(err, &dnsErr):
		return CodeNotFound
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimedOut
	default:
		return ""
	}
}
