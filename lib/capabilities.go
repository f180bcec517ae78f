package lib

import "strings"

// Capabilities is the free-form set of browser/session options sent when a
// session is created, and the set granted back by the remote end.
type Capabilities map[string]interface{}

// BrowserName returns the "browserName" capability, or an empty string.
func (c Capabilities) BrowserName() string {
	s, _ := c["browserName"].(string)
	return s
}

// Clone returns a shallow copy of c.
func (c Capabilities) Clone() Capabilities {
	res := make(Capabilities, len(c))
	for k, v := range c {
		res[k] = v
	}
	return res
}

// Merge returns a new Capabilities with c's values overwritten by every
// non-nil value in overrides. Nested maps are merged one level deep, so a
// module can add a single vendor option without repeating the others.
func (c Capabilities) Merge(overrides Capabilities) Capabilities {
	res := c.Clone()
	for k, v := range overrides {
		if v == nil {
			continue
		}
		over, ok := asMap(v)
		base, okBase := asMap(res[k])
		if !ok || !okBase {
			res[k] = v
			continue
		}
		merged := make(map[string]interface{}, len(base)+len(over))
		for bk, bv := range base {
			merged[bk] = bv
		}
		for key, ov := range over {
			merged[key] = ov
		}
		res[k] = merged
	}
	return res
}

// asMap accepts both plain maps (JSON decoding) and Capabilities (YAML
// decoding into the named type keeps the type for nested mappings).
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Capabilities:
		return m, true
	default:
		return nil, false
	}
}

// SessionDescriptor identifies an active remote browser session.
type SessionDescriptor struct {
	ID           string
	Capabilities Capabilities
}

// BrowserName is the browser the remote end actually started.
func (s *SessionDescriptor) BrowserName() string {
	if s == nil {
		return ""
	}
	return s.Capabilities.BrowserName()
}

// IsChrome reports whether the session runs Chrome or Chromium.
func (s *SessionDescriptor) IsChrome() bool {
	switch strings.ToLower(s.BrowserName()) {
	case "chrome", "chromium", "chrome-headless-shell":
		return true
	}
	return false
}

// IsEdge reports whether the session runs Microsoft Edge.
func (s *SessionDescriptor) IsEdge() bool {
	switch strings.ToLower(s.BrowserName()) {
	case "microsoftedge", "msedge", "edge":
		return true
	}
	return false
}

// IsFirefox reports whether the session runs Firefox.
func (s *SessionDescriptor) IsFirefox() bool {
	return strings.EqualFold(s.BrowserName(), "firefox")
}
