package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrJamesThe3rd/till/internal/config"
)

// New builds the process logger. Output goes to stderr and, when LOG_FILE is
// set, to a size-rotated file as well.
func New(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr

	if cfg.Log.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})

	return slog.New(handler).With("app", cfg.App.Name)
}

// NewFile logs only to the rotated file. The console uses it because stderr
// belongs to the terminal UI.
func NewFile(cfg *config.Config, fallback string) *slog.Logger {
	name := cfg.Log.File
	if name == "" {
		name = fallback
	}

	w := &lumberjack.Logger{
		Filename:   name,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	return slog.LevelInfo
}
