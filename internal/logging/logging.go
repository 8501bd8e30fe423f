// Package logging configures the structured logger the scheduler uses for
// its operational side channel. It is not part of the public event model —
// the event bus remains the source of truth for consumers; this package only
// gives operators something to tail.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config controls where and how the scheduler logs.
type Config struct {
	// Level is one of trace, debug, info, warn, error, disabled. Default: info.
	Level string

	// Console enables human-readable output on stderr.
	Console bool

	// JSON switches the console writer to raw JSON lines (for log shippers).
	JSON bool
}

// DefaultConfig returns the logging defaults used when a scheduler is built
// without an explicit Config.
func DefaultConfig() Config {
	return Config{Level: "info", Console: true}
}

// New builds a component-rooted logger from cfg. The returned logger carries
// no component field; use Named to scope it to a subsystem.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.ErrorFieldName = "err"

	var w io.Writer = io.Discard
	if cfg.Console {
		if cfg.JSON {
			w = os.Stderr
		} else {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat}
		}
	}

	return zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Named returns a child logger tagged with a "component" field, mirroring
// how the scheduler's subsystems (store, executor, trigger) each get their
// own scoped logger off the root.
func Named(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	case "", "info":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
