// Package logging configures the JSONL log shared by the chat owner and CLI clients.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// maxLogBytes is the size past which the log is rotated to log.jsonl.1 at startup.
const maxLogBytes = 4 << 20

// Runtime bundles the configured logger, its adjustable level, and the open file handle.
type Runtime struct {
	Logger *slog.Logger
	Level  *slog.LevelVar
	Path   string
	closer io.Closer
}

// SetLevel changes the minimum level for subsequent records.
func (r Runtime) SetLevel(level slog.Level) {
	if r.Level != nil {
		r.Level.Set(level)
	}
}

// Close closes the log file.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New opens the JSONL log under the state directory. Records start at info
// until SetLevel applies debug.log_level, and each carries the process pid so
// owner and client lines can be told apart.
func New() (Runtime, error) {
	path, err := resolveLogPath()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	if err := rotate(path, maxLogBytes); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log: %w", err)
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})).With("pid", os.Getpid())
	return Runtime{Logger: logger, Level: level, Path: path, closer: f}, nil
}

// Discard returns a runtime that drops every record.
func Discard() Runtime {
	return Runtime{Logger: slog.New(slog.DiscardHandler), Level: new(slog.LevelVar)}
}

// rotate moves path to path.1 once it has grown past limit, replacing any older rotation.
func rotate(path string, limit int64) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat log: %w", err)
	case info.Size() < limit:
		return nil
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	return nil
}

func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "parley", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve log path: %w", err)
	}
	return filepath.Join(home, ".local", "state", "parley", "log.jsonl"), nil
}
