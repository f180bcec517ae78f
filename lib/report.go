package lib

import (
	"bytes"
	"encoding/json"
	"fmt"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/liuxd6825/wdrunner/lib/sessionerr"
	"github.com/liuxd6825/wdrunner/lib/types"
)

// RunReport is the aggregated outcome of a run. It is built by a single
// goroutine and must be treated as read-only once handed out.
type RunReport struct {
	RunID         string
	ErrorCount    int
	ErrorMessages []string
	// LastError is the fail-fast trigger, or else the session error of the
	// last failing module in discovery order.
	LastError *sessionerr.Error

	Passed, Failed, Skipped int
	Duration                types.Duration

	keys    []string
	modules map[string]ModuleResult
}

// NewRunReport returns an empty report with a fresh run ID.
func NewRunReport() *RunReport {
	r := &RunReport{modules: make(map[string]ModuleResult)}
	if id, err := uuid.NewV4(); err == nil {
		r.RunID = id.String()
	}
	return r
}

// Add records a module result and folds it into the totals. Results must be
// added in discovery order; adding a path twice replaces nothing and returns
// an error.
func (r *RunReport) Add(res ModuleResult) error {
	if r.modules == nil {
		r.modules = make(map[string]ModuleResult)
	}
	if _, ok := r.modules[res.Path]; ok {
		return fmt.Errorf("module %q is already in the report", res.Path)
	}
	r.keys = append(r.keys, res.Path)
	r.modules[res.Path] = res

	r.ErrorCount += res.ErrorCount()
	r.ErrorMessages = append(r.ErrorMessages, res.ErrorMessages()...)
	r.Passed += res.Count(StatusPassed)
	r.Failed += res.Count(StatusFailed)
	r.Skipped += res.Count(StatusSkipped)
	if res.SessionError != nil {
		r.LastError = res.SessionError
	}
	return nil
}

// Keys returns the module paths in discovery order.
func (r *RunReport) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Get returns the result of the module at path.
func (r *RunReport) Get(path string) (ModuleResult, bool) {
	res, ok := r.modules[path]
	return res, ok
}

// Len returns the number of recorded modules.
func (r *RunReport) Len() int {
	return len(r.keys)
}

// HasFailures reports whether anything in the run failed.
func (r *RunReport) HasFailures() bool {
	return r.ErrorCount > 0 || r.Failed > 0 || r.LastError != nil
}

type orderedModules struct {
	keys    []string
	modules map[string]ModuleResult
}

func (om orderedModules) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(om.modules[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the report with modules in discovery order.
func (r *RunReport) MarshalJSON() ([]byte, error) {
	var lastErr *sessionErrorJSON
	if r.LastError != nil {
		lastErr = newSessionErrorJSON(r.LastError)
	}
	return json.Marshal(struct {
		RunID         string            `json:"runId"`
		ErrorCount    int               `json:"errors"`
		ErrorMessages []string          `json:"errmessages"`
		Modules       orderedModules    `json:"modules"`
		LastError     *sessionErrorJSON `json:"lastError,omitempty"`
		Passed        int               `json:"passed"`
		Failed        int               `json:"failed"`
		Skipped       int               `json:"skipped"`
		Duration      types.Duration    `json:"duration"`
	}{
		RunID:         r.RunID,
		ErrorCount:    r.ErrorCount,
		ErrorMessages: append([]string{}, r.ErrorMessages...),
		Modules:       orderedModules{r.keys, r.modules},
		LastError:     lastErr,
		Passed:        r.Passed,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		Duration:      r.Duration,
	})
}
