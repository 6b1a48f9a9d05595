package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rowguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store backend = %q", cfg.Store.Backend)
	}
	if cfg.Engine.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("refresh interval = %v", cfg.Engine.RefreshInterval)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should default to enabled")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
	if cfg.Audit.Retention.PruneSchedule != "0 3 * * *" {
		t.Errorf("prune schedule = %q", cfg.Audit.Retention.PruneSchedule)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestApplyDefaultsIdempotent(t *testing.T) {
	cfg := NewDefault()
	before := *cfg
	ApplyDefaults(cfg)
	if !reflect.DeepEqual(*cfg, before) {
		t.Error("ApplyDefaults changed an already-defaulted config")
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: "0.0.0.0:9000"
store:
  backend: sqlite
  sqlite:
    path: /tmp/policies.db
engine:
  refresh_interval: 10s
audit:
  enabled: false
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.SQLite.Path != "/tmp/policies.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Engine.RefreshInterval != 10*time.Second {
		t.Errorf("refresh interval = %v", cfg.Engine.RefreshInterval)
	}
	// Explicit false must survive defaulting.
	if cfg.Audit.Enabled {
		t.Error("audit.enabled false was overridden")
	}
	// Unset fields pick up defaults.
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout)
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  listen_address: "127.0.0.1:8170"
`)

	t.Setenv("ROWGUARD_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("ROWGUARD_STORE_BACKEND", "file")
	t.Setenv("ROWGUARD_STORE_FILE_PATH", "/etc/rowguard/policies.yaml")
	t.Setenv("ROWGUARD_ENGINE_REFRESH_INTERVAL", "45s")
	t.Setenv("ROWGUARD_AUDIT_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Store.Backend != "file" || cfg.Store.File.Path != "/etc/rowguard/policies.yaml" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Engine.RefreshInterval != 45*time.Second {
		t.Errorf("refresh interval = %v", cfg.Engine.RefreshInterval)
	}
	if cfg.Audit.Enabled {
		t.Error("audit.enabled env override not applied")
	}
}

func TestSingleton(t *testing.T) {
	cfg := NewDefault()
	SetConfig(cfg)
	defer SetConfig(nil)

	if got := GetConfig(); got != cfg {
		t.Error("GetConfig returned a different instance")
	}
	if got := MustGetConfig(); got != cfg {
		t.Error("MustGetConfig returned a different instance")
	}
}
