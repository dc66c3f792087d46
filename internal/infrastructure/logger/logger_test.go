package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigForEnv(t *testing.T) {
	assert.Equal(t, "console", ConfigForEnv("development", "debug").Format)
	assert.Equal(t, "json", ConfigForEnv("production", "info").Format)
	assert.Equal(t, "debug", ConfigForEnv("development", "debug").Level)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Named("onchain").Info("pass finished", zap.Int("confirmed", 2))
	log.Debug("dropped below level")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "onchain", entry["logger"])
	assert.Equal(t, "pass finished", entry["msg"])
	assert.EqualValues(t, 2, entry["confirmed"])
}

func TestNew_UnwritableOutputFallsBack(t *testing.T) {
	log, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "app.log")})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestMasked(t *testing.T) {
	assert.Equal(t, "******3210", Masked("phone", "9876543210").String)
	assert.Equal(t, "***", Masked("phone", "123").String)
	assert.Equal(t, "aadhaar", Masked("aadhaar", "x").Key)
}
