// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/ensemble-cli/internal/config"
)

// initToBuffer initializes the global logger against an in-memory console
// writer so tests never touch stdout.
func initToBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console format is human readable", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
		})

		GetLogger().Info("chain started")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "chain started")
		assert.Contains(t, output, "TestService.")
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("budget low", zap.Int("remaining", 3))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "budget low", entry["msg"])
		assert.Equal(t, float64(3), entry["remaining"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{
			Level:  "not-a-level",
			Format: "json",
		})

		GetLogger().Debug("hidden")
		GetLogger().Info("visible")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible")
	})

	t.Run("writes to a log file when configured", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "run.log")
		initToBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logPath,
			MaxSize: 1,
		})

		GetLogger().Error("this should reach the file")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this should reach the file")
	})

	t.Run("initializes only once", func(t *testing.T) {
		buf := initToBuffer(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "First"})

		// A second call must be a no-op; the first config wins.
		Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))

		GetLogger().Info("ping")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback before initialization", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)

		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the stored global after initialization", func(t *testing.T) {
		initToBuffer(t, config.LoggerConfig{Level: "info", Format: "console", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
