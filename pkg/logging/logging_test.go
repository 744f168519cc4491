package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "worker.log")

	log, sync, err := New(Options{Level: "info", Format: "json", Outputs: []string{path}})
	require.NoError(t, err)

	log.WithName("test").Info("task started", "round", 3)
	log.V(1).Info("debug entry is filtered")
	sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"task started"`)
	assert.Contains(t, out, `"round":3`)
	assert.False(t, strings.Contains(out, "debug entry is filtered"))
}

func TestNewErrorCarriesStacktrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	log, sync, err := New(Options{Format: "json", Outputs: []string{path}})
	require.NoError(t, err)

	log.Error(assert.AnError, "failed to send result")
	sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stacktrace"`)
}

func TestNewRotatingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotated.log")

	log, sync, err := New(Options{
		Outputs:  []string{path},
		Rotation: Rotation{Enable: true, MaxSizeMB: 1},
	})
	require.NoError(t, err)
	log.Info("hello")
	sync()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
