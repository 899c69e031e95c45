package cryscope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/realtime"
	"github.com/harunnryd/cryscope/pkg/transports/websocket"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cryscope.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport.Provider != "websocket" || cfg.Capture.Provider != "wav" {
		t.Fatalf("unexpected providers %q %q", cfg.Transport.Provider, cfg.Capture.Provider)
	}
	if cfg.Realtime.Model != websocket.DefaultModel || cfg.Realtime.TranscriptionModel != realtime.DefaultTranscriptModel {
		t.Fatalf("unexpected models %+v", cfg.Realtime)
	}
	if cfg.Realtime.Linger().Milliseconds() != 8000 || cfg.Realtime.LingerQuiet().Milliseconds() != 1500 {
		t.Fatalf("unexpected linger defaults %+v", cfg.Realtime)
	}
	if cfg.Realtime.DialRetries != 2 || cfg.Realtime.DialBackoff().Milliseconds() != 250 {
		t.Fatalf("unexpected dial retry defaults %+v", cfg.Realtime)
	}
	if cfg.Realtime.StopTimeoutMS != 3000 || !cfg.Privacy.RedactSecrets || cfg.Observability.RetentionDays != 7 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	t.Setenv("CRYSCOPE_TEST_API_KEY", "sk-test-123456")
	path := writeConfig(t, `
log_level: debug
realtime:
  transcription_model: custom-model
  stop_timeout_ms: 1500
transport:
  provider: websocket
  settings:
    api_key: ${CRYSCOPE_TEST_API_KEY}
    workspace: ws-1
capture:
  provider: tone
  settings:
    duration_ms: 500
privacy:
  redact_secrets: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Realtime.TranscriptionModel != "custom-model" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Realtime.StopTimeout().Milliseconds() != 1500 {
		t.Fatalf("unexpected stop timeout %v", cfg.Realtime.StopTimeout())
	}
	if cfg.Realtime.Model != websocket.DefaultModel {
		t.Fatalf("expected default model to survive a partial realtime block, got %q", cfg.Realtime.Model)
	}
	if cfg.Transport.Settings["api_key"] != "sk-test-123456" {
		t.Fatalf("expected env expansion, got %v", cfg.Transport.Settings["api_key"])
	}
	if cfg.Privacy.RedactSecrets {
		t.Fatalf("expected redact_secrets override")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"format":   "log_format: xml\n",
		"provider": "transport:\n  provider: \"\"\n",
		"timeout":  "realtime:\n  stop_timeout_ms: 0\n",
		"retries":  "realtime:\n  dial_retries: -1\n",
		"sampling": "observability:\n  log_frame_sample_rate: 2\n",
		"linger":   "realtime:\n  linger_ms: -5\n",
	}
	for name, body := range cases {
		_, err := LoadConfig(writeConfig(t, body))
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
			t.Fatalf("%s: expected config_invalid reason, got %v", name, errorsx.Reason(err))
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
