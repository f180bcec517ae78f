// Package main is the entry point of the wdrunner CLI.
package main

import (
	"github.com/liuxd6825/wdrunner/internal/cmd"
)

func main() {
	cmd.Execute()
}
