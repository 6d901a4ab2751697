// Package colors exposes sprint helpers for the handful of colors
// used across companion's CLI output and request logs.
package colors

import "github.com/fatih/color"

var (
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Blue   = color.New(color.FgBlue).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
)
