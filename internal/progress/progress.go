// Package progress writes progress lines and operator messages to the
// console. Lines
// from concurrent runners never interleave.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"stresstest/internal/collector"
)

// Printer serializes console output. A nil *Printer prints nothing.
type Printer struct {
	mu     sync.Mutex
	output io.Writer
	quiet  bool
}

// NewPrinter creates a printer writing to w, or stdout when w is nil. Quiet
// suppresses progress lines but keeps messages.
func NewPrinter(w io.Writer, quiet bool) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{output: w, quiet: quiet}
}

// Window prints the progress line of a completed pass.
func (p *Printer) Window(endpoint string, w collector.Window) {
	if p == nil || p.quiet {
		return
	}
	p.Print(collector.FormatProgress(endpoint, w))
}

func (p *Printer) Print(message string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.output, message)
	p.mu.Unlock()
}

func (p *Printer) Printf(format string, args ...any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, format+"\n", args...)
	p.mu.Unlock()
}
