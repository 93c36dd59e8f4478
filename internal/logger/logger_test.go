package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestDelivery(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json").WithRunID("run-1")

	log.Delivery("a@x.com", 1, 3, 20*time.Millisecond, nil)
	entry := lastEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "a@x.com", entry["recipient"])
	assert.Equal(t, true, entry["delivered"])

	log.Delivery("b@y.com", 2, 3, time.Millisecond, errors.New("rejected"))
	entry = lastEntry(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "rejected", entry["error"])
	assert.Equal(t, false, entry["delivered"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")

	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud", "json")

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestHTTPRequestAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json").WithComponent("http").WithRequestID("req-9")

	log.HTTPRequest("GET", "/api/v1/state", 200, time.Millisecond, "127.0.0.1")
	entry := lastEntry(t, &buf)
	assert.Equal(t, "http", entry["component"])
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "/api/v1/state", entry["path"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "text").Info().Msg("hello console")
	assert.Contains(t, buf.String(), "hello console")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
