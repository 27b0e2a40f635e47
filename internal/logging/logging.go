// Package logging configures the structured logger shared by every
// skilltune component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Logger is the process-wide logger. Components derive prefixed loggers
// from it with New.
var Logger = newLogger(os.Stderr, log.InfoLevel)

func newLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.New(w)
	l.SetTimeFormat("15:04:05")
	l.SetReportTimestamp(true)
	l.SetLevel(level)
	return l
}

// Configure replaces Logger with one at the given level. An empty level
// is info; an empty file keeps logging on stderr.
func Configure(level, file string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", file, err)
		}
		out = f
	}
	Logger = newLogger(out, lvl)
	return nil
}

// ParseLevel maps a level name to a log.Level. The empty string is info.
func ParseLevel(level string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return log.InfoLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a logger tagged with the component name.
func New(component string) *log.Logger {
	return Logger.WithPrefix(component)
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *log.Logger {
	return newLogger(io.Discard, log.ErrorLevel)
}
