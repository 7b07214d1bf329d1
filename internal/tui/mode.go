// Package tui shows analysis progress in the terminal, either as an animated
// bubbletea view or as plain lines when no terminal is attached.
package tui

import (
	"os"

	"golang.org/x/term"
)

// Mode selects how progress is shown.
type Mode int

const (
	ModeTUI Mode = iota
	ModePlain
	ModeQuiet
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	case ModeQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// Detector picks a Mode for an output file.
type Detector struct {
	out    *os.File
	getenv func(string) string
	quiet  bool
}

// NewDetector creates a detector for progress written to out.
func NewDetector(out *os.File) *Detector {
	return &Detector{out: out, getenv: os.Getenv}
}

// Quiet suppresses progress output.
func (d *Detector) Quiet(q bool) *Detector {
	d.quiet = q
	return d
}

// Detect returns ModeQuiet when quiet, ModePlain in CI or without a
// terminal, and ModeTUI otherwise.
func (d *Detector) Detect() Mode {
	switch {
	case d.quiet:
		return ModeQuiet
	case d.getenv("CI") != "" || d.getenv("TERM") == "dumb":
		return ModePlain
	case d.out == nil || !term.IsTerminal(int(d.out.Fd())):
		return ModePlain
	}
	return ModeTUI
}

// UseColor reports whether styled output is appropriate.
func (d *Detector) UseColor() bool {
	if d.getenv("NO_COLOR") != "" {
		return false
	}
	return d.Detect() == ModeTUI
}

// Width returns the terminal width of out, or 80.
func (d *Detector) Width() int {
	if d.out != nil {
		if w, _, err := term.GetSize(int(d.out.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return 80
}
