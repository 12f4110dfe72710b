// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ontoforge/ontoforge/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a slog.Logger per the logging section: level, text or JSON
// handler, stderr by default, a file when configured, rotated by lumberjack
// when rotation is enabled. The returned closer flushes and closes the file
// sink; callers should defer it.
func New(cfg config.Logging) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if cfg.Rotation.Enabled {
			lj := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.Rotation.MaxMB,
				MaxBackups: cfg.Rotation.BackupCount,
			}
			w, closer = lj, lj
		} else {
			f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, nil, fmt.Errorf("open log file: %w", err)
			}
			w, closer = f, f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", raw)
}
