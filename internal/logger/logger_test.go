package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"CsvLogPump/internal/config"
)

func TestInitZapWritesWarningsToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pump.log")
	lg, err := InitZap(&config.LoggingConfig{Level: "debug", LogFile: path, MaxSizeMB: 1})
	require.NoError(t, err)

	lg.Info("не попадёт в файл")
	lg.Warn("попадёт в файл")
	_ = lg.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "попадёт в файл")
	assert.NotContains(t, string(data), "не попадёт в файл")
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = parseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = parseLevel("loud")
	assert.Error(t, err)
}
