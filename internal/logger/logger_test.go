package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug": log.DebugLevel,
		"INFO":  log.InfoLevel,
		"":      log.InfoLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
		"loud":  log.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmdhelper.log")
	require.NoError(t, Configure("debug", path))
	t.Cleanup(func() { _ = Configure("info", "") })

	Debug("Hook installed", "addr", Addr(0x53EA8E))
	NewStyledLogger("registry").Info("Snapshot published")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "addr=0x0053EA8E")
	assert.Contains(t, string(data), "registry")
	assert.Contains(t, string(data), "Snapshot published")
}

func TestConfigureBadPath(t *testing.T) {
	err := Configure("info", filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Warn("Companion unavailable", "error", "not loaded")
	assert.Contains(t, buf.String(), "Companion unavailable")
}
