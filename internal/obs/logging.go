// Package obs contains observability utilities such as logging.
package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the global structured logger used by the service.
//
// Logger is exported to allow other packages to use it for logging.
var Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// InitLogger initializes the global Logger with a JSON handler at info level.
func InitLogger() {
	InitLoggerLevel("info")
}

// InitLoggerLevel initializes the global Logger with a JSON handler at the
// given level. Unknown levels fall back to info.
func InitLoggerLevel(level string) {
	InitLoggerWriter(os.Stdout, level)
}

// InitLoggerWriter is InitLoggerLevel with an explicit destination.
func InitLoggerWriter(w io.Writer, level string) {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	Logger = slog.New(h)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
