// Package output provides rendering for CLI commands with support for
// text, markdown and JSON modes. Auto mode picks text on a terminal
// and markdown when piped, so scripted callers get parseable output
// without asking for it.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Mode is the output format selection.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Valid reports whether the mode names a known format. The empty
// string counts as auto.
func (m Mode) Valid() bool {
	switch m {
	case "", ModeAuto, ModeText, ModeMarkdown, ModeJSON:
		return true
	}
	return false
}

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	styles *Styles
}

// NewRenderer creates a renderer. An empty mode means auto.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	return &Renderer{out: out, errOut: errOut, mode: mode}
}

// Mode returns the configured mode, before auto resolution.
func (r *Renderer) Mode() Mode { return r.mode }

// EffectiveMode resolves auto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY() {
		return ModeText
	}
	return ModeMarkdown
}

func (r *Renderer) isTTY() bool {
	f, ok := r.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Writer returns the output stream.
func (r *Renderer) Writer() io.Writer { return r.out }

// ErrWriter returns the error stream.
func (r *Renderer) ErrWriter() io.Writer { return r.errOut }

// Styles returns the style set for the effective mode, colored only
// on a terminal.
func (r *Renderer) Styles() *Styles {
	if r.styles == nil {
		r.styles = NewStyles(r.EffectiveMode() == ModeText && r.isTTY())
	}
	return r.styles
}

// Println writes a line to the output stream.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to the output stream.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header writes a section header, styled in text mode and as a
// markdown heading otherwise.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		s := r.Styles().Header2
		if level <= 1 {
			s = r.Styles().Header1
		}
		r.Println(s.Render(text))
		return
	}
	r.Println(FormatHeader(level, text))
}

// Errorf writes a formatted message to the error stream.
func (r *Renderer) Errorf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.errOut, format, a...)
}

// JSON writes a value as indented JSON to the output stream.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
