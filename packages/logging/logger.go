// Package logging builds the structured logger shared by every relay
// component. Components never log through a global; they receive a
// *slog.Logger from their constructor.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the log directory and file.
const AppName = "relay"

const (
	// maxLogSize is the maximum log file size before rotation (5 MB).
	maxLogSize = 5 * 1024 * 1024
	// maxLogBackups is the number of rotated log files to keep.
	maxLogBackups = 3
)

// Options controls InitLogger.
type Options struct {
	// Path overrides the platform log location.
	Path  string
	Debug bool
	// Console additionally writes human-readable records to this writer.
	Console io.Writer
}

// InitLogger opens (and rotates if needed) the log file and returns a JSON
// logger writing to it. The returned closer releases the file.
//
// Default locations:
//   - macOS:   ~/Library/Logs/relay/relay.log
//   - Linux:   ~/.local/state/relay/relay.log
//   - Windows: %LOCALAPPDATA%\relay\Logs\relay.log
func InitLogger(opts Options) (*slog.Logger, io.Closer, error) {
	logPath := opts.Path
	if logPath == "" {
		p, err := DefaultLogPath(AppName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get log file path: %w", err)
		}
		logPath = p
	}

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	if err := rotateIfNeeded(logPath); err != nil {
		return nil, nil, fmt.Errorf("failed to rotate log file: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Debug,
	}

	var handler slog.Handler = slog.NewJSONHandler(logFile, handlerOpts)
	if opts.Console != nil {
		handler = fanout{handler, slog.NewTextHandler(opts.Console, handlerOpts)}
	}

	return slog.New(handler).With(slog.Int("pid", os.Getpid())), logFile, nil
}

// rotateIfNeeded renames current.log to current.log.1, .1 to .2 and so on,
// keeping maxLogBackups files.
func rotateIfNeeded(logPath string) error {
	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Size() < maxLogSize {
		return nil
	}

	for i := maxLogBackups; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", logPath, i)
		dst := fmt.Sprintf("%s.%d", logPath, i+1)
		if i == maxLogBackups {
			os.Remove(src)
		} else {
			os.Rename(src, dst)
		}
	}

	if err := os.Rename(logPath, logPath+".1"); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	return nil
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(appName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", appName, appName+".log"), nil
	case "linux":
		return filepath.Join(homeDir, ".local", "state", appName, appName+".log"), nil
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, appName, "Logs", appName+".log"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NewNopLogger()
	}
	return l
}
