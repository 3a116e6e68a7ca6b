package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalYAML = `
mqtt:
  broker: tcp://localhost:1883
  client_id: boothd-test
booths:
  - id: b1
    name: Central
    charge_cutoff: 95
    slots: [s1, s2]
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":8080" {
		t.Fatalf("api addr %q", cfg.API.Addr)
	}
	if cfg.Dispatch.CommandTimeoutSeconds != 5 {
		t.Fatalf("command timeout %d", cfg.Dispatch.CommandTimeoutSeconds)
	}
	if cfg.Telemetry.StaleAfterSeconds != 30 || cfg.Telemetry.AnomalyWindow != 60 {
		t.Fatalf("telemetry defaults %+v", cfg.Telemetry)
	}
	if cfg.Audit.Backend != "jsonl" || cfg.Audit.Path != "audit.log" {
		t.Fatalf("audit defaults %+v", cfg.Audit)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("broker %q", cfg.MQTT.Broker)
	}
	if len(cfg.Booths) != 1 || len(cfg.Booths[0].Slots) != 2 {
		t.Fatalf("booths %+v", cfg.Booths)
	}
	if cfg.Booths[0].ChargeCutoff != 95 {
		t.Fatalf("cutoff %v", cfg.Booths[0].ChargeCutoff)
	}
}

func TestLoadJSON(t *testing.T) {
	body := `{"api":{"addr":":9090"},"mqtt":{"broker":"tcp://b:1883"},"audit":{"backend":"sqlite","path":"a.db"}}`
	cfg, err := Load(writeConfig(t, "config.json", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":9090" {
		t.Fatalf("api addr %q", cfg.API.Addr)
	}
	if cfg.Audit.Backend != "sqlite" || cfg.Audit.Path != "a.db" {
		t.Fatalf("audit %+v", cfg.Audit)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "x = 1"))
	if err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Fatalf("err %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("B_API__ADDR", ":7070")
	t.Setenv("B_DISPATCH__COMMAND_TIMEOUT_SECONDS", "9")
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":7070" {
		t.Fatalf("api addr %q", cfg.API.Addr)
	}
	if cfg.Dispatch.CommandTimeoutSeconds != 9 {
		t.Fatalf("command timeout %d", cfg.Dispatch.CommandTimeoutSeconds)
	}
}

func TestValidateDuplicateBooth(t *testing.T) {
	body := `
booths:
  - id: b1
    slots: [s1]
  - id: b1
    slots: [s1]
`
	_, err := Load(writeConfig(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "duplicate booth id") {
		t.Fatalf("err %v", err)
	}
}

func TestValidateDuplicateSlot(t *testing.T) {
	body := `
booths:
  - id: b1
    slots: [s1, s1]
`
	_, err := Load(writeConfig(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "duplicate slot id") {
		t.Fatalf("err %v", err)
	}
}

func TestValidateAuditBackend(t *testing.T) {
	body := `
audit:
  backend: postgres
`
	_, err := Load(writeConfig(t, "config.yaml", body))
	if err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Fatalf("err %v", err)
	}
}
