package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_CountsMessagesByLevel(t *testing.T) {
	registry := prometheus.NewPedanticRegistry()
	buf := &bytes.Buffer{}

	logger := newLogger(Config{Level: "info"}, zapcore.AddSync(buf), prometheusHook("klag", registry))
	defer zap.ReplaceGlobals(zap.NewNop())

	logger.Debug("dropped")
	logger.Info("pass finished", zap.String("pass_id", "a"))
	logger.Warn("partition skipped")
	logger.Warn("partition skipped")

	expected := `
# HELP klag_log_messages_total Total number of log messages by log level emitted by klag.
# TYPE klag_log_messages_total counter
klag_log_messages_total{level="debug"} 0
klag_log_messages_total{level="info"} 1
klag_log_messages_total{level="warn"} 2
klag_log_messages_total{level="error"} 0
klag_log_messages_total{level="fatal"} 0
klag_log_messages_total{level="panic"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "klag_log_messages_total"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "pass finished", entry["msg"])
	assert.Equal(t, "a", entry["pass_id"])
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Level = "verbose"
	assert.Error(t, cfg.Validate())
}
