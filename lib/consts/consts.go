// Package consts houses some constants needed across wdrunner.
package consts

// Version contains the current semantic version of wdrunner. Overridden with
// -ldflags "-X github.com/liuxd6825/wdrunner/lib/consts.Version=...".
var Version = "0.1.0-dev" //nolint:gochecknoglobals

// UserAgent is sent with every WebDriver and CDP discovery request.
func UserAgent() string {
	return "wdrunner/" + Version
}
