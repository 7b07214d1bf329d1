// Package clip copies rendered reports to the user's clipboard, falling back
// to a terminal escape sequence and finally to a file on disk.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is how the content was made available.
type Method string

const (
	MethodNative Method = "native" // system clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape sequence
	MethodFile   Method = "file"   // written to a file instead
)

// Result reports where the content went.
type Result struct {
	Method Method
	// Path is set when Method is MethodFile.
	Path string
}

// Describe returns a one-line message for the user.
func (r Result) Describe() string {
	switch r.Method {
	case MethodNative:
		return "report copied to clipboard"
	case MethodOSC52:
		return "report copied to clipboard via terminal"
	default:
		return "clipboard unavailable, report saved to " + r.Path
	}
}

// OSC52LimitBytes caps the escape sequence payload. Terminals drop or block
// on larger sequences.
const OSC52LimitBytes = 100_000

// Copier copies text using the first method that works.
type Copier struct {
	native   func(string) error
	terminal *os.File
	env      func(string) string
	dir      string
}

// New creates a Copier that writes OSC52 sequences to stderr and falls back
// to files in the system temp directory.
func New() *Copier {
	return &Copier{
		native:   atotto.WriteAll,
		terminal: os.Stderr,
		env:      os.Getenv,
		dir:      os.TempDir(),
	}
}

// Copy tries the system clipboard, then OSC52, then a file.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.native != nil && c.native(text) == nil {
		return Result{Method: MethodNative}, nil
	}
	if c.terminal != nil && term.IsTerminal(int(c.terminal.Fd())) {
		if err := c.writeOSC52(c.terminal, text); err == nil {
			return Result{Method: MethodOSC52}, nil
		}
	}
	path, err := c.writeFile(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, Path: path}, nil
}

func (c *Copier) writeOSC52(w io.Writer, text string) error {
	if len(text) > OSC52LimitBytes {
		return fmt.Errorf("report too large for OSC52 (%d bytes)", len(text))
	}
	seq := osc52.New(text).Limit(OSC52LimitBytes)
	switch {
	case c.env("TMUX") != "":
		seq = seq.Tmux()
	case c.env("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(w)
	return err
}

func (c *Copier) writeFile(text string) (string, error) {
	f, err := os.CreateTemp(c.dir, "diligence-report-*.md")
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("writing report file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing report file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}
