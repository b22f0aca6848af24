package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the process logger. Output goes to stderr because stdout
// carries the stdio transport.
func New(env string, debug bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, env, debug)
}

// NewWithWriter builds a logger writing to w. Development gets a console
// writer, every other environment gets JSON lines.
func NewWithWriter(w io.Writer, env string, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if env == "development" || env == "dev" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
		logger = zerolog.New(w).With().Timestamp().Logger()
	}
	logger = logger.Level(level)

	log.Logger = logger
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
