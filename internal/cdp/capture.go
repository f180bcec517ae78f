// Package cdp implements the commands that need the Chrome DevTools Protocol
// next to the WebDriver session of a Chromium based browser.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/liuxd6825/wdrunner/lib"
	"github.com/liuxd6825/wdrunner/lib/consts"
)

//nolint:revive,stylecheck
var (
	// ErrUnsupportedEngine is returned for sessions of browsers without CDP.
	ErrUnsupportedEngine = errors.New("The command .captureNetworkRequests() is only supported in Chrome and Edge drivers")
	// ErrMissingCallback is returned when no request handler is given.
	ErrMissingCallback = errors.New("Callback is missing from .captureNetworkRequests() command.")
	// ErrNoDebugger is returned when the session does not expose a debugger address.
	ErrNoDebugger = errors.New("the session capabilities have no DevTools debugger address")
)

const enableMsgID = 1

// RequestHandler receives every request the page is about to send.
type RequestHandler func(ev *network.EventRequestWillBeSent)

// Capture is a running network capture. It ends when the context given to
// CaptureNetworkRequests is done or Close is called.
type Capture struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Close ends the capture and waits for its goroutines.
func (c *Capture) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// CaptureNetworkRequests connects to the DevTools endpoint of sess, enables
// the Network domain and delivers every Network.requestWillBeSent event to
// onRequest. done, if not nil, is called once: with nil when the browser
// acknowledged Network.enable, or with the error that stopped the capture
// from starting. Errors are also logged and returned.
func CaptureNetworkRequests(
	ctx context.Context, logger logrus.FieldLogger, sess *lib.SessionDescriptor,
	onRequest RequestHandler, done func(error),
) (*Capture, error) {
	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			if done != nil {
				done(err)
			}
		})
	}
	fail := func(err error) (*Capture, error) {
		logger.WithError(err).Error("Capturing network requests failed")
		finish(err)
		return nil, err
	}

	if !sess.IsChrome() && !sess.IsEdge() {
		return fail(ErrUnsupportedEngine)
	}
	if onRequest == nil {
		return fail(ErrMissingCallback)
	}

	wsURL, err := debuggerURL(ctx, sess.Capabilities)
	if err != nil {
		return fail(err)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fail(fmt.Errorf("connecting to %s: %w", wsURL, err))
	}

	params, err := easyjson.Marshal(network.Enable())
	if err != nil {
		_ = conn.Close()
		return fail(err)
	}
	msg, err := easyjson.Marshal(&cdproto.Message{
		ID:     enableMsgID,
		Method: cdproto.MethodType(network.CommandEnable),
		Params: params,
	})
	if err != nil {
		_ = conn.Close()
		return fail(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		_ = conn.Close()
		return fail(fmt.Errorf("sending %s: %w", network.CommandEnable, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{conn: conn, cancel: cancel}
	logger = logger.WithFields(logrus.Fields{"session": sess.ID, "component": "cdp"})

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.readLoop(ctx, logger, onRequest, finish)
	}()

	return c, nil
}

func (c *Capture) readLoop(
	ctx context.Context, logger logrus.FieldLogger, onRequest RequestHandler, finish func(error),
) {
	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Debug("DevTools connection closed")
			}
			finish(fmt.Errorf("DevTools connection closed before %s was acknowledged: %w", network.CommandEnable, err))
			return
		}

		var msg cdproto.Message
		lexer := jlexer.Lexer{Data: buf}
		msg.UnmarshalEasyJSON(&lexer)
		if err := lexer.Error(); err != nil {
			logger.WithError(err).Debug("Ignoring malformed DevTools message")
			continue
		}

		switch {
		case msg.ID == enableMsgID:
			if msg.Error != nil {
				logger.WithError(msg.Error).Error("Capturing network requests failed")
				finish(msg.Error)
				return
			}
			finish(nil)
		case msg.Method == cdproto.EventNetworkRequestWillBeSent:
			ev := new(network.EventRequestWillBeSent)
			if err := easyjson.Unmarshal(msg.Params, ev); err != nil {
				logger.WithError(err).Debug("Ignoring malformed requestWillBeSent event")
				continue
			}
			onRequest(ev)
		}
	}
}

// debuggerURL finds the websocket URL of the first page target.
func debuggerURL(ctx context.Context, caps lib.Capabilities) (string, error) {
	if u, ok := caps["se:cdp"].(string); ok && u != "" {
		return u, nil
	}

	var addr string
	for _, key := range []string{"goog:chromeOptions", "ms:edgeOptions"} {
		if opts, ok := caps[key].(map[string]interface{}); ok {
			if a, ok := opts["debuggerAddress"].(string); ok && a != "" {
				addr = a
				break
			}
		}
	}
	if addr == "" {
		return "", ErrNoDebugger
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(addr, "/")+"/json/list", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", consts.UserAgent())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("listing DevTools targets: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("listing DevTools targets: %w", err)
	}

	ws := gjson.GetBytes(body, `#(type=="page").webSocketDebuggerUrl`)
	if !ws.Exists() || ws.String() == "" {
		return "", fmt.Errorf("no page target found at %s", addr)
	}
	return ws.String(), nil
}
