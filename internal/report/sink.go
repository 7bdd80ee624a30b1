package report

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Sink receives report lines
type Sink interface {
	Log(line string)
	Warn(line string)
	Error(line string)
}

// ConsoleSink writes colored lines: Log goes to out, Warn and Error go to errOut.
type ConsoleSink struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	logColor   *color.Color
	warnColor  *color.Color
	errorColor *color.Color
}

// NewConsoleSink creates a sink on stdout and stderr
func NewConsoleSink() *ConsoleSink {
	return NewWriterSink(os.Stdout, os.Stderr)
}

// NewWriterSink creates a sink on arbitrary writers
func NewWriterSink(out, errOut io.Writer) *ConsoleSink {
	return &ConsoleSink{
		out:        out,
		errOut:     errOut,
		logColor:   color.New(color.FgGreen),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed),
	}
}

// Log implements Sink
func (s *ConsoleSink) Log(line string) {
	s.write(s.out, s.logColor, line)
}

// Warn implements Sink
func (s *ConsoleSink) Warn(line string) {
	s.write(s.errOut, s.warnColor, line)
}

// Error implements Sink
func (s *ConsoleSink) Error(line string) {
	s.write(s.errOut, s.errorColor, line)
}

func (s *ConsoleSink) write(w io.Writer, c *color.Color, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = c.Fprintln(w, line)
}
