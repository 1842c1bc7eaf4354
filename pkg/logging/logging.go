package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init installs a text logger on stderr as the slog default and returns it.
// The level comes from LOG_LEVEL and defaults to info.
func Init() *slog.Logger {
	return initTo(os.Stderr)
}

func initTo(w io.Writer) *slog.Logger {
	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: levelFromEnv(),
		}),
	)
	slog.SetDefault(logger)
	return logger
}

func levelFromEnv() slog.Level {
	level := slog.LevelInfo

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch strings.ToLower(strings.TrimSpace(l)) {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}
	return level
}
