package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONLoggerCarriesServiceAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Service: "koravi", Env: "test", Level: "info", Format: "json"})
	log.Debug("hidden")
	log.Info("client created", slog.String("client_id", "c1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "client created", entry["msg"])
	require.Equal(t, "koravi", entry["service"])
	require.Equal(t, "c1", entry["client_id"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Service: "koravi", Format: "text"})
	log.Warn("stats aggregate failed")
	require.Contains(t, buf.String(), `msg="stats aggregate failed"`)
	require.Contains(t, buf.String(), "service=koravi")
}
