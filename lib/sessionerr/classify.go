package sessionerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultTool is the name used in hints about who manages the driver process.
const DefaultTool = "wdrunner"

// Context is what the classifier knows about the session create attempt
// besides the failure itself.
type Context struct {
	Driver       string
	Tool         string
	Host         string
	Port         int
	ServerPath   string
	StartProcess bool

	// Settings are the effective webdriver settings, rendered into
	// DetailedErr for configuration problems.
	Settings any
}

// DriverName returns the display name of the driver serving browserName.
func DriverName(browserName string) string {
	switch strings.ToLower(browserName) {
	case "firefox":
		return "GeckoDriver"
	case "chrome", "chromium":
		return "ChromeDriver"
	case "microsoftedge", "msedge", "edge":
		return "EdgeDriver"
	case "safari":
		return "SafariDriver"
	default:
		return "WebDriver"
	}
}

func (c Context) driver() string {
	if c.Driver == "" {
		return "WebDriver"
	}
	return c.Driver
}

func (c Context) tool() string {
	if c.Tool == "" {
		return DefaultTool
	}
	return c.Tool
}

func (c Context) settingsDump() string {
	if c.Settings != nil {
		if b, err := json.MarshalIndent(c.Settings, "", "  "); err == nil {
			return string(b)
		}
	}
	b, _ := json.MarshalIndent(map[string]any{
		"host":          c.Host,
		"port":          c.Port,
		"start_process": c.StartProcess,
		"server_path":   c.ServerPath,
	}, "", "  ")
	return string(b)
}

func (c Context) createPrefix() string {
	return fmt.Sprintf("An error occurred while creating a new %s session: ", c.driver())
}

// Classify maps a failure of a session create call to a typed *Error. It
// never returns nil for a non-nil err. Failures that are not a
// *TransportFailure, or that no rule matches, become the SessionCreateError
// fallback.
func Classify(err error, c Context) *Error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}

	var tf *TransportFailure
	if !errors.As(err, &tf) {
		return fallback(err, c, "", err.Error())
	}

	switch tf.Kind {
	case FailureProcessSpawn:
		if tf.PathNotFound {
			return serverPathNotFound(tf, c)
		}
		if tf.ExitStatus.Valid {
			return serverTerminatedEarly(tf, c)
		}
	case FailureNetwork:
		if tf.Code == CodeConnRefused {
			return connectionRefused(tf, c)
		}
		return fallback(tf, c, tf.Code, tf.Error())
	case FailureProtocol:
		if name, ok := RemoteName(tf.RemoteError); ok {
			return remote(tf, c, name)
		}
		if tf.RemoteError != "" {
			f := fallback(tf, c, "", tf.RemoteError+": "+tf.RemoteMessage)
			f.HTTPStatus, f.RemoteError = tf.HTTPStatus, tf.RemoteError
			return f
		}
		f := fallback(tf, c, "", fmt.Sprintf("unexpected HTTP status %d", tf.HTTPStatus))
		f.HTTPStatus = tf.HTTPStatus
		return f
	}
	return fallback(tf, c, "", tf.Error())
}

func serverPathNotFound(tf *TransportFailure, c Context) *Error {
	path := tf.Path
	if path == "" {
		path = c.ServerPath
	}
	return &Error{
		Kind: KindServerPathNotFound,
		Name: KindServerPathNotFound.String(),
		Message: fmt.Sprintf("Unable to create the %s process: The specified executable path does not exist: %s",
			c.driver(), path),
		DetailedErr:   " verify if webdriver is configured correctly; using:\n" + c.settingsDump(),
		SessionCreate: true,
		Err:           tf,
	}
}

func serverTerminatedEarly(tf *TransportFailure, c Context) *Error {
	return &Error{
		Kind: KindServerTerminatedEarly,
		Name: KindServerTerminatedEarly.String(),
		Message: c.createPrefix() +
			fmt.Sprintf("[Error] Server terminated early with status %d", tf.ExitStatus.Int64),
		DetailedErr:   fmt.Sprintf(" Verify if %s is configured correctly; using:\n%s", c.driver(), c.settingsDump()),
		SessionCreate: true,
		Err:           tf,
	}
}

func connectionRefused(tf *TransportFailure, c Context) *Error {
	host, port := tf.Host, tf.Port
	if host == "" {
		host, port = c.Host, c.Port
	}
	return &Error{
		Kind: KindConnectionRefused,
		Name: KindConnectionRefused.String(),
		Message: c.createPrefix() + fmt.Sprintf("Connection refused to %s:%d. "+
			"If the Webdriver/Selenium service is managed by %s, check if \"start_process\" is set to \"true\".",
			host, port, c.tool()),
		Code:                     tf.Code,
		SessionCreate:            true,
		SessionConnectionRefused: true,
		Err:                      tf,
	}
}

func remote(tf *TransportFailure, c Context, name string) *Error {
	return &Error{
		Kind:          KindRemote,
		Name:          name,
		Message:       c.createPrefix() + fmt.Sprintf("[%s] %s", name, tf.RemoteMessage),
		SessionCreate: true,
		HTTPStatus:    tf.HTTPStatus,
		RemoteError:   tf.RemoteError,
		Err:           tf,
	}
}

func fallback(err error, c Context, code, detail string) *Error {
	return &Error{
		Kind:          KindSessionCreate,
		Name:          FallbackName,
		Message:       c.createPrefix() + fmt.Sprintf("[%s] %s", FallbackName, detail),
		ShowTrace:     true,
		Code:          code,
		SessionCreate: true,
		Err:           err,
	}
}
