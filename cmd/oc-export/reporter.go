package main

import (
	"io"
	"sync"

	"github.com/Sternrassler/oc-marketplace-export/pkg/logging"
	"github.com/fatih/color"
)

// colorReporter prints progress messages colored by severity.
type colorReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newColorReporter(out io.Writer) *colorReporter {
	return &colorReporter{out: out}
}

func (r *colorReporter) Report(msg string, severity logging.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch severity {
	case logging.SeveritySuccess:
		color.New(color.FgGreen).Fprintln(r.out, "✓ "+msg)
	case logging.SeverityWarn:
		color.New(color.FgYellow).Fprintln(r.out, "⚠ "+msg)
	case logging.SeverityError:
		color.New(color.FgRed).Fprintln(r.out, "✗ "+msg)
	default:
		color.New(color.FgCyan).Fprintln(r.out, "  "+msg)
	}
}
