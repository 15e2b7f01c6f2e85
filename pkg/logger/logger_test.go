package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: INFO, Format: JSON, Output: &buf, Service: "reservations"})

	log.Debug("hidden")
	log.Info("allocated", "request_id", "r-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "allocated", record["msg"])
	assert.Equal(t, "reservations", record[SERVICE])
	assert.Equal(t, "r-1", record["request_id"])
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf}).Component("admission-worker")

	log.Warn("lock busy")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "admission-worker", record[COMPONENT])
	assert.Equal(t, "WARN", record["level"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "text", Level: DEBUG, Output: &buf})
	log.Debug("tick")
	assert.Contains(t, buf.String(), "msg=tick")
}
