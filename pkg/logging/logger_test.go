package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v, true", in, got, ok, want)
		}
	}
	if lvl, ok := ParseLevel("verbose"); ok || lvl != slog.LevelInfo {
		t.Fatalf("expected unknown level to fall back to info")
	}
}

func TestComponentLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, Config{Level: "debug", Format: "json"})
	NewComponentLogger(base, "realtime_session").Debug("state_changed", slog.String("state", "STREAMING"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if rec["component"] != "realtime_session" {
		t.Fatalf("expected component attr, got %v", rec["component"])
	}
	if rec["msg"] != "state_changed" || rec["state"] != "STREAMING" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn"})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn record")
	}
}

func TestInitLoggerWarnsOnInvalidLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := InitLogger(&buf, Config{Level: "loud", Format: "yaml"})
	if slog.Default() != logger {
		t.Fatalf("expected logger to become the default")
	}
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("invalid log level")) || !bytes.Contains([]byte(out), []byte("invalid log format")) {
		t.Fatalf("expected warnings for level and format, got %q", out)
	}
}
