// Package cli holds the terminal formatting shared by the junotron commands.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + reset
}

// Green, Yellow, Red, Bold and Dim wrap s in the ANSI attribute, or return
// it unchanged when NO_COLOR is set.
func Green(s string) string  { return paint("\033[32m", s) }
func Yellow(s string) string { return paint("\033[33m", s) }
func Red(s string) string    { return paint("\033[31m", s) }
func Bold(s string) string   { return paint("\033[1m", s) }
func Dim(s string) string    { return paint("\033[2m", s) }

// Verdict renders a short coloured outcome: ok, unverified or failed.
func Verdict(err error, verified bool) string {
	switch {
	case err != nil:
		return Red("failed")
	case !verified:
		return Yellow("unverified")
	}
	return Green("ok")
}

// CommandLine colours a planned command by its verb.
func CommandLine(cmd string) string {
	switch {
	case strings.HasPrefix(cmd, "set "):
		return Green("+ ") + cmd
	case strings.HasPrefix(cmd, "delete "):
		return Red("- ") + cmd
	}
	return "  " + cmd
}

// DotPad pads name with dots to width.
// Example: DotPad("fetch", 12) → "fetch ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
