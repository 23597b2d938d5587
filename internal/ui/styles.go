// Package ui renders terminal output for the marketplace CLI.
package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // yellow
	colorFail   = 203 // red
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderPhase colors a projection phase by how healthy it is.
func RenderPhase(phase string) string {
	switch phase {
	case "live":
		return paint(colorOK, phase)
	case "catching_up", "starting":
		return paint(colorAccent, phase)
	case "restarting":
		return paint(colorWarn, phase)
	case "failed":
		return paint(colorFail, phase)
	default:
		return paint(colorMuted, phase)
	}
}

// RenderHealth renders a health flag as "ok" or "unhealthy".
func RenderHealth(ok bool) string {
	if ok {
		return paint(colorOK, "ok")
	}
	return paint(colorFail, "unhealthy")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
