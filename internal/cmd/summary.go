package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/liuxd6825/wdrunner/lib"
)

type summaryTheme struct {
	passed, failed, skipped, faint *color.Color
}

func newSummaryTheme(colorize bool) summaryTheme {
	th := summaryTheme{
		passed:  color.New(color.FgGreen),
		failed:  color.New(color.FgRed),
		skipped: color.New(color.FgYellow),
		faint:   color.New(color.Faint),
	}
	for _, c := range []*color.Color{th.passed, th.failed, th.skipped, th.faint} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return th
}

func (th summaryTheme) status(s lib.Status) *color.Color {
	switch s {
	case lib.StatusPassed:
		return th.passed
	case lib.StatusFailed:
		return th.failed
	default:
		return th.skipped
	}
}

func statusMark(s lib.Status) string {
	switch s {
	case lib.StatusPassed:
		return "✓"
	case lib.StatusFailed:
		return "✗"
	default:
		return "↓"
	}
}

// renderSummary renders the end-of-run summary. Error lines are cut to width
// unless width is 0.
func renderSummary(report *lib.RunReport, colorize bool, width int) string {
	th := newSummaryTheme(colorize)
	var sb strings.Builder

	nameWidth := 0
	for _, key := range report.Keys() {
		if len(key) > nameWidth {
			nameWidth = len(key)
		}
	}

	sb.WriteString("\n")
	for _, key := range report.Keys() {
		res, _ := report.Get(key)
		st := th.status(res.Status)
		fmt.Fprintf(&sb, "  %s %-*s %s %s\n",
			st.Sprint(statusMark(res.Status)), nameWidth, key,
			st.Sprintf("%-7s", res.Status),
			th.faint.Sprint(res.Duration.String()))
		for _, tc := range res.TestCases {
			if tc.Status == lib.StatusPassed {
				continue
			}
			line := fmt.Sprintf("      %s %s", statusMark(tc.Status), tc.Name)
			if tc.Err != "" {
				line += ": " + tc.Err
			}
			sb.WriteString(th.status(tc.Status).Sprint(truncate(line, width)) + "\n")
		}
		for _, msg := range res.ErrorMessages() {
			sb.WriteString(th.failed.Sprint(truncate("      "+msg, width)) + "\n")
		}
	}

	fmt.Fprintf(&sb, "\n  modules.....: %d\n", report.Len())
	fmt.Fprintf(&sb, "  test cases..: %s, %s, %s\n",
		th.passed.Sprintf("%d passed", report.Passed),
		th.failed.Sprintf("%d failed", report.Failed),
		th.skipped.Sprintf("%d skipped", report.Skipped))
	errs := fmt.Sprintf("%d", report.ErrorCount)
	if report.ErrorCount > 0 {
		errs = th.failed.Sprint(errs)
	}
	fmt.Fprintf(&sb, "  errors......: %s\n", errs)
	fmt.Fprintf(&sb, "  duration....: %s\n\n", time.Duration(report.Duration).Round(time.Millisecond))

	return sb.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// exportSummary writes the report as indented JSON.
func exportSummary(fs afero.Fs, path string, report *lib.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding the run report: %w", err)
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing the run report to %q: %w", path, err)
	}
	return nil
}
