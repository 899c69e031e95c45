package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harunnryd/cryscope/pkg/cryscope"
)

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersion(t *testing.T) {
	stdout, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "cryscope ") {
		t.Fatalf("expected 'cryscope', got: %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	stdout, _, err := runCmd(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("expected JSON, got %s", stdout)
	}
	if _, ok := out["version"]; !ok {
		t.Fatalf("expected version key, got %v", out)
	}
}

func TestStreamMockToneJSON(t *testing.T) {
	cfgPath := writeFile(t, "cryscope.yaml", `
realtime:
  stop_timeout_ms: 200
  linger_quiet_ms: 20
capture:
  provider: tone
  settings:
    duration_ms: 512
    no_pacing: true
`)
	eventsPath := filepath.Join(t.TempDir(), "events.jsonl")
	stdout, stderr, err := runCmd(t, "--config", cfgPath, "stream", "--mock", "--tone", "--json", "--events", eventsPath)
	if err != nil {
		t.Fatalf("stream: %v\n%s", err, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	var rec resultRecord
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &rec); err != nil {
		t.Fatalf("decode result line: %v (%s)", err, stdout)
	}
	if rec.Kind != "result" || rec.Text != "Cry detected. Likely cause: hunger." {
		t.Fatalf("unexpected result %+v", rec)
	}
	if rec.State != "CLOSED" || rec.FramesSent != 2 || rec.Error != "" {
		t.Fatalf("unexpected result %+v", rec)
	}
	events, err := os.ReadFile(eventsPath)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if !strings.Contains(string(events), `"name":"session_result"`) {
		t.Fatalf("expected session_result event in %s", events)
	}
}

func TestStreamReportsConfigErrors(t *testing.T) {
	cfgPath := writeFile(t, "bad.yaml", "log_format: xml\n")
	if _, _, err := runCmd(t, "--config", cfgPath, "stream", "--mock", "--tone"); err == nil {
		t.Fatalf("expected config error")
	}
	if _, _, err := runCmd(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "stream"); err == nil {
		t.Fatalf("expected missing env file error")
	}
}

func TestEnvFileProvidesAPIKey(t *testing.T) {
	t.Setenv("CRYSCOPE_TEST_ENV_VALUE", "")
	os.Unsetenv("CRYSCOPE_TEST_ENV_VALUE")
	envPath := writeFile(t, "test.env", "CRYSCOPE_TEST_ENV_VALUE=from-dotenv\n")
	if err := loadEnvFile(envPath); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("CRYSCOPE_TEST_ENV_VALUE"); got != "from-dotenv" {
		t.Fatalf("expected dotenv value, got %q", got)
	}
}

func TestApplyStreamFlags(t *testing.T) {
	cfg := cryscope.DefaultConfig()
	cfg.Capture = cryscope.ProviderConfig{Provider: "tone", Settings: map[string]any{"frequency_hz": 300}}

	got := applyStreamFlags(cfg, &streamOptions{wav: "cry.wav", loop: true, mock: true})
	if got.Capture.Provider != "wav" || got.Capture.Settings["path"] != "cry.wav" || got.Capture.Settings["loop"] != true {
		t.Fatalf("unexpected capture %+v", got.Capture)
	}
	if _, ok := got.Capture.Settings["frequency_hz"]; ok {
		t.Fatalf("expected tone settings to be dropped when switching to wav")
	}
	if got.Transport.Provider != "mock" {
		t.Fatalf("expected mock transport, got %s", got.Transport.Provider)
	}
	if cfg.Capture.Provider != "tone" {
		t.Fatalf("expected input config to be untouched")
	}

	got = applyStreamFlags(cfg, &streamOptions{tone: true})
	if got.Capture.Settings["frequency_hz"] != 300 {
		t.Fatalf("expected tone settings to be kept, got %+v", got.Capture.Settings)
	}
}
