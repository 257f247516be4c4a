// Package logging builds the zerolog logger the relay writes through.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// DebugEnv forces debug level logging when set to any non-empty value.
const DebugEnv = "SSERELAY_DEBUG"

// New returns a logger writing to w at level, as human readable console lines
// or as JSON objects depending on format.
func New(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if os.Getenv(DebugEnv) != "" {
		lvl = zerolog.DebugLevel
	}

	switch format {
	case "json":
	case "console", "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
