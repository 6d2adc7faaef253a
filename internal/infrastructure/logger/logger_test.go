package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.Equal(t, DefaultTimeFormat, cfg.TimeFormat)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(&Config{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("receipt posted")
	log.Debug("retrying")
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "receipt posted", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "caller")
	assert.Contains(t, entry, "time")
}

func TestNew_StampsServiceAndOrderFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	orderID := uuid.New()
	eventID := uuid.New()

	log, err := New(&Config{Level: "info", Format: "json", Output: path, Service: "procurement", Environment: "test"})
	require.NoError(t, err)

	log.Info("receipt posted", append(Event(eventID, "ReceiptPosted"), OrderID(orderID))...)
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "procurement", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, orderID.String(), entry[KeyOrderID])
	assert.Equal(t, eventID.String(), entry[KeyEventID])
	assert.Equal(t, "ReceiptPosted", entry[KeyEventType])
}

func TestNew_OmitsEmptyServiceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(&Config{Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("order approved")
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.NotContains(t, entry, "service")
	assert.NotContains(t, entry, "env")
}

func TestNewCore_LevelEnabled(t *testing.T) {
	core := NewCore(&Config{Level: "warn", Format: "console", Output: "stderr"})

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
}
