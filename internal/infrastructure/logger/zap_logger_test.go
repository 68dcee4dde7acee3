package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Level(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger("nonsense")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNewFileLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orderflow.log")
	l, err := NewFileLogger(path, "info", false)
	require.NoError(t, err)

	l.Info("Candle", zap.String("symbol", "BTCUSDT"), zap.Float64("delta", 12.5))
	l.Debug("hidden")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"symbol":"BTCUSDT"`)
	assert.Contains(t, string(raw), `"delta":12.5`)
	assert.NotContains(t, string(raw), "hidden")
}
