package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	logPath, err := DefaultLogPath("relay")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(logPath))

	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, filepath.Join(homeDir, "Library", "Logs", "relay", "relay.log"), logPath)
	case "linux":
		assert.Equal(t, filepath.Join(homeDir, ".local", "state", "relay", "relay.log"), logPath)
	}
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{"info level", false},
		{"debug level", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "nested", "relay.log")
			logger, closer, err := InitLogger(Options{Path: logPath, Debug: tt.debug})
			require.NoError(t, err)
			defer closer.Close()

			logger.Info("test message", slog.String("key", "value"))
			logger.Debug("debug message")

			data, err := os.ReadFile(logPath)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"msg":"test message"`)
			assert.Equal(t, tt.debug, bytes.Contains(data, []byte("debug message")))
		})
	}
}

func TestInitLogger_Console(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := InitLogger(Options{Path: filepath.Join(t.TempDir(), "relay.log"), Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("dispatched", slog.String("slot", "tab1"))
	assert.Contains(t, console.String(), "msg=dispatched")
	assert.Contains(t, console.String(), "slot=tab1")
}

func TestRotateIfNeeded(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "relay.log")
	require.NoError(t, os.WriteFile(logPath, bytes.Repeat([]byte("x"), maxLogSize), 0644))
	for i := 1; i <= maxLogBackups; i++ {
		require.NoError(t, os.WriteFile(fmt.Sprintf("%s.%d", logPath, i), []byte(fmt.Sprint(i)), 0644))
	}

	require.NoError(t, rotateIfNeeded(logPath))

	_, err := os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, int64(maxLogSize), info.Size())

	data, err := os.ReadFile(logPath + ".2")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	data, err = os.ReadFile(logPath + ".3")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

func TestRotateIfNeeded_SmallFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "relay.log")
	require.NoError(t, os.WriteFile(logPath, []byte("small"), 0644))
	require.NoError(t, rotateIfNeeded(logPath))

	_, err := os.Stat(logPath + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestNewNopLogger(t *testing.T) {
	logger := NewNopLogger()
	require.NotNil(t, logger)

	logger.Info("test info")
	logger.Error("test error")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := slog.Default()
	assert.Same(t, l, OrNop(l))
}
