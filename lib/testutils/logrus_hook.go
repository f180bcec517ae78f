package testutils

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// SimpleLogrusHook is a logrus.Hook that keeps every entry it sees, so tests
// can assert on what was logged.
type SimpleLogrusHook struct {
	HookedLevels []logrus.Level

	mu      sync.Mutex
	entries []logrus.Entry
}

var _ logrus.Hook = &SimpleLogrusHook{}

// NewLogHook creates a hook for the given levels, or for all of them.
func NewLogHook(levels ...logrus.Level) *SimpleLogrusHook {
	if len(levels) == 0 {
		levels = logrus.AllLevels
	}
	return &SimpleLogrusHook{HookedLevels: levels}
}

// Levels implements logrus.Hook.
func (h *SimpleLogrusHook) Levels() []logrus.Level {
	return h.HookedLevels
}

// Fire implements logrus.Hook.
func (h *SimpleLogrusHook) Fire(e *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, *e)
	return nil
}

// Drain returns the stored entries and forgets them.
func (h *SimpleLogrusHook) Drain() []logrus.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.entries
	h.entries = nil
	return res
}

// Entries returns a copy of the stored entries without forgetting them.
func (h *SimpleLogrusHook) Entries() []logrus.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]logrus.Entry(nil), h.entries...)
}

// LogContains reports whether any entry has the given level and a message
// containing msg.
func LogContains(entries []logrus.Entry, level logrus.Level, msg string) bool {
	return len(FilterEntries(entries, level, msg)) > 0
}

// FilterEntries returns the entries with the given level and a message
// containing msg.
func FilterEntries(entries []logrus.Entry, level logrus.Level, msg string) []logrus.Entry {
	var res []logrus.Entry
	for _, e := range entries {
		if e.Level == level && strings.Contains(e.Message, msg) {
			res = append(res, e)
		}
	}
	return res
}
