package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)

	l.Debug().Msg("hidden")
	l.Info().Str("component", "proxy").Msg("visible")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "proxy", entry["component"])
	assert.Contains(t, entry, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "debug", "console")
	require.NoError(t, err)

	l.Debug().Msg("pulse")
	assert.Contains(t, buf.String(), "pulse")
	assert.Contains(t, buf.String(), "DBG")
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestComponentUsesDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)

	prev := *GetDefaultLogger()
	SetDefaultLogger(l)
	t.Cleanup(func() { SetDefaultLogger(prev) })

	c := Component("api")
	c.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"api"`)
}
