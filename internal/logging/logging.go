// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/echopolis/market-engine/internal/config"
)

// New returns a JSON logger writing to stdout and, when logging.file is set,
// to a size-rotated file as well. The returned closer flushes the file.
func New(cfg *config.Config) (*slog.Logger, io.Closer) {
	level, err := cfg.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Logging.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
		// Fall back to stdout only.
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nopCloser{}
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   true,
	}
	writer := io.MultiWriter(os.Stdout, fileLogger)
	return slog.New(slog.NewJSONHandler(writer, opts)), fileLogger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
