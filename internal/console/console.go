// Package console writes human readable progress messages for the CLI.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("32"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("31"))
)

// Printer writes progress messages to a stream, normally stderr so stdout
// stays reserved for command results.
type Printer struct {
	stream io.Writer
	indent string
	quiet  bool
}

// Option configures a Printer.
type Option func(*Printer)

// WithQuiet suppresses everything except errors.
func WithQuiet(quiet bool) Option {
	return func(p *Printer) {
		p.quiet = quiet
	}
}

// WithForceColor keeps colour output when the stream is not a terminal.
func WithForceColor() Option {
	return func(p *Printer) {
		os.Setenv("CLICOLOR_FORCE", "1")
	}
}

// NewPrinter creates a new Printer instance with the specified output stream.
func NewPrinter(stream io.Writer, opts ...Option) *Printer {
	p := &Printer{
		stream: stream,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) Info(emoji string, format string, a ...any) (n int, err error) {
	if p.quiet {
		return 0, nil
	}
	prefix := p.indent + withEmoji(emoji)
	return fmt.Fprintf(p.stream, prefix+format+"\n", a...)
}

func (p *Printer) Success(emoji string, format string, a ...any) (n int, err error) {
	if p.quiet {
		return 0, nil
	}
	return p.styled(successStyle, emoji, format, a...)
}

func (p *Printer) Warn(emoji string, format string, a ...any) (n int, err error) {
	if p.quiet {
		return 0, nil
	}
	return p.styled(warnStyle, emoji, format, a...)
}

// Error is always written, even in quiet mode.
func (p *Printer) Error(emoji string, format string, a ...any) (n int, err error) {
	return p.styled(errorStyle, emoji, format, a...)
}

func (p *Printer) styled(style lipgloss.Style, emoji string, format string, a ...any) (int, error) {
	prefix := p.indent + withEmoji(emoji)
	return fmt.Fprintln(p.stream, style.Render(fmt.Sprintf(prefix+format, a...)))
}

func withEmoji(emoji string) string {
	if emoji == "" {
		return ""
	}
	return emoji + " "
}
