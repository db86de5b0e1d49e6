package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/nalgeon/be"
)

func TestParseLevel(t *testing.T) {
	be.Equal(t, ParseLevel("debug"), slog.LevelDebug)
	be.Equal(t, ParseLevel("warn"), slog.LevelWarn)
	be.Equal(t, ParseLevel("error"), slog.LevelError)
	be.Equal(t, ParseLevel("nonsense"), slog.LevelInfo)
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "json")
	log.Info("hello", "account_id", "a1")

	var line map[string]any
	be.Err(t, json.Unmarshal(buf.Bytes(), &line), nil)
	be.Equal(t, line["msg"], "hello")
	be.Equal(t, line["account_id"], "a1")
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "text")
	log.Info("dropped")
	be.Equal(t, buf.Len(), 0)

	log.Warn("kept")
	be.True(t, bytes.Contains(buf.Bytes(), []byte("kept")))
}
