package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTeeWritesBothSinks(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "benchmark.log")

	log, closeLog := New(Config{Level: "info", Console: true, Stdout: &console, FilePath: path})
	log.Info("trial finished", zap.String("implementation", "hyper-http"), zap.Int("connections", 100))
	log.Debug("hidden at info")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "trial finished")
	assert.Contains(t, string(data), `"implementation": "hyper-http"`)
	assert.NotContains(t, string(data), "hidden at info")

	assert.Contains(t, console.String(), "trial finished")
}

func TestFileOnly(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "benchmark.log")

	log, closeLog := New(Config{Level: "debug", Console: false, Stdout: &console, FilePath: path})
	log.Debug("probe sent")
	closeLog()

	assert.Empty(t, console.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "probe sent")
}

func TestNoSinks(t *testing.T) {
	log, closeLog := New(Config{})
	log.Info("dropped")
	closeLog()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}
