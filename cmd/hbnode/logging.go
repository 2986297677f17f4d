package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sat-heartbeat/internal/report"
)

// newLogger builds the process logger. Output goes through a diode so the
// engine never blocks on a slow console.
func newLogger(level string, w io.Writer, self string) (zerolog.Logger, io.Closer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out, closer := report.NonBlockingWriter(w, 1000)
	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("self", self).
		Logger()
	return logger, closer
}
