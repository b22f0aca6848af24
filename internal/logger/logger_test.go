package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production", false)

	cl := Component(l, "jira_client")
	cl.Info().Str("issue_key", "PROJ-1").Msg("fetched")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "jira_client", entry["component"])
	assert.Equal(t, "PROJ-1", entry["issue_key"])
	assert.Equal(t, "fetched", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewWithWriter_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production", false)
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	l = NewWithWriter(&buf, "production", true)
	l.Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithWriter_DevelopmentIsConsole(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "development", false)
	l.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output should not be JSON: %q", out)
}
