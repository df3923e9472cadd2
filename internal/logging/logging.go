// Package logging builds the zerolog loggers shared by the server and peer commands.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LevelFor maps the repeated -v count to a log level
func LevelFor(verbosity int) zerolog.Level {
	switch {
	case verbosity <= 0:
		return zerolog.InfoLevel
	case verbosity == 1:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// New returns a console logger writing to w (stderr when nil)
func New(verbosity int, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(LevelFor(verbosity)).With().Timestamp().Logger()
}
