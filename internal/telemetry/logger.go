package telemetry

import (
	"io"
	"log"
)

// Logger is the minimal logging surface used across the engine.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return log.New(io.Discard, "", 0)
}
