package app

import (
	"io"
	"log/slog"
)

// logLevels maps the -log-level values to slog levels. Anything else logs at
// info.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger returns the driver logger. Every line carries the submission
// mode, since the same study assembled in test and in queue mode produces
// identical messages otherwise. slog.Default is left alone so tests can run
// several Apps at once.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	level, ok := logLevels[cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(outW, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	}
	return slog.New(handler).With("mode", cfg.Mode)
}
