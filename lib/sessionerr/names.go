package sessionerr

// remoteNames maps the W3C WebDriver error codes a remote end may put in the
// "error" field of a response to the names callers match on.
//
// See https://www.w3.org/TR/webdriver2/#errors
var remoteNames = map[string]string{ //nolint:gochecknoglobals
	"element click intercepted": "ElementClickInterceptedError",
	"element not interactable":  "ElementNotInteractableError",
	"insecure certificate":      "InsecureCertificateError",
	"invalid argument":          "InvalidArgumentError",
	"invalid cookie domain":     "InvalidCookieDomainError",
	"invalid element state":     "InvalidElementStateError",
	"invalid selector":          "InvalidSelectorError",
	"invalid session id":        "InvalidSessionIdError",
	"javascript error":          "JavaScriptError",
	"move target out of bounds": "MoveTargetOutOfBoundsError",
	"no such alert":             "NoSuchAlertError",
	"no such cookie":            "NoSuchCookieError",
	"no such element":           "NoSuchElementError",
	"no such frame":             "NoSuchFrameError",
	"no such window":            "NoSuchWindowError",
	"no such shadow root":       "NoSuchShadowRootError",
	"script timeout":            "ScriptTimeoutError",
	"session not created":       "SessionNotCreatedError",
	"stale element reference":   "StaleElementReferenceError",
	"detached shadow root":      "DetachedShadowRootError",
	"timeout":                   "TimeoutError",
	"unable to set cookie":      "UnableToSetCookieError",
	"unable to capture screen":  "UnableToCaptureScreenError",
	"unexpected alert open":     "UnexpectedAlertOpenError",
	"unknown command":           "UnknownCommandError",
	"unknown error":             "UnknownError",
	"unknown method":            "UnknownMethodError",
	"unsupported operation":     "UnsupportedOperationError",
}

// RemoteName returns the typed name for a remote error code, and false when
// the code is not one the W3C specification defines.
func RemoteName(remoteError string) (string, bool) {
	name, ok := remoteNames[remoteError]
	return name, ok
}
