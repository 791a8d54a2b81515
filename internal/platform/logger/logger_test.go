package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/platform/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.Log{Level: "warn", Format: "json"}, &buf)

	log.Info("dropped")
	log.Warn("rate limit backend failover", "to", "local")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rate limit backend failover", entry["msg"])
	assert.Equal(t, "gatekeeper", entry["service"])
	assert.Equal(t, "local", entry["to"])
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.Log{Level: "info", Format: "text"}, &buf)

	log.Info("server starting", "addr", ":8080")
	assert.Contains(t, buf.String(), `msg="server starting"`)
	assert.Contains(t, buf.String(), "addr=:8080")
}
