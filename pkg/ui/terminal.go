// Package ui writes command output. Data (JSON documents) goes to stdout so
// it can be piped; status lines go to stderr and are colored only when
// stderr is a terminal.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		return fmt.Sprintf(colorString, text)
	}
}

// Printer writes data to out and status messages to errOut
type Printer struct {
	out    io.Writer
	errOut io.Writer
	color  bool
}

// NewPrinter creates a printer. Colors are enabled when errOut is a terminal.
func NewPrinter(out, errOut io.Writer) *Printer {
	color := false
	if f, ok := errOut.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, errOut: errOut, color: color}
}

var std = NewPrinter(os.Stdout, os.Stderr)

// Default returns the printer on stdout and stderr
func Default() *Printer {
	return std
}

func (p *Printer) paint(c func(string) string, s string) string {
	if !p.color {
		return s
	}
	return c(s)
}

// JSON writes v as indented JSON followed by a newline
func (p *Printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// JSONLine writes v as a single line of JSON
func (p *Printer) JSONLine(v interface{}) error {
	enc := json.NewEncoder(p.out)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Line writes a plain line of data
func (p *Printer) Line(s string) {
	fmt.Fprintln(p.out, s)
}

// Error prints an error message in red
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.errOut, p.paint(Red, msg))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.errOut, p.paint(Yellow, msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.errOut, p.paint(Green, msg))
}

// Info prints a label and value
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.errOut, "%s: %s\n", p.paint(Cyan, label), p.paint(Yellow, value))
}

// Highlight prints a highlighted message in magenta
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.errOut, p.paint(Magenta, msg))
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v interface{}) error {
	return std.JSON(v)
}

// PrintError prints an error message to stderr
func PrintError(msg string, args ...interface{}) {
	std.Error(msg, args...)
}

// PrintWarning prints a warning message to stderr
func PrintWarning(msg string, args ...interface{}) {
	std.Warning(msg, args...)
}

// PrintSuccess prints a success message to stderr
func PrintSuccess(msg string) {
	std.Success(msg)
}

// PrintInfo prints a label and value to stderr
func PrintInfo(label, value string) {
	std.Info(label, value)
}
