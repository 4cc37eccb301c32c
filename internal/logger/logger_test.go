package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, sync := Build(Options{Level: "warn", JSON: true, Console: &buf})

	l.Info("hidden")
	l.Warn("shown")
	sync()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestBuildFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l, sync := Build(Options{Level: "loud", Console: &buf})

	l.Debug("debug line")
	l.Info("info line")
	sync()

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestRotatingFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "library.log")
	var console bytes.Buffer
	l, sync := Build(Options{
		Level:   "info",
		JSON:    true,
		Console: &console,
		Rotate:  FileRotate{Enable: true, Filename: path, MaxSizeMB: 1},
	})

	l.Info("to both sinks")
	sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "to both sinks")
	assert.Contains(t, console.String(), "to both sinks")
}
