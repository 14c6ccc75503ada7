package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New builds the process logger. Terminals get the colored text format,
// anything else gets logfmt. Timestamps are shown in loc.
func New(w io.Writer, level string, loc *time.Location, tty bool) *log.Logger {
	if loc == nil {
		loc = time.UTC
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05 MST",
		TimeFunction:    func(t time.Time) time.Time { return t.In(loc) },
	})
	if !tty {
		l.SetFormatter(log.LogfmtFormatter)
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
		l.Warn("unknown log level, using info", "level", level)
	}
	l.SetLevel(lvl)
	return l
}

// Discard is a logger that drops everything; handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
