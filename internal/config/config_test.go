package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "routing:\n  enabled: true\n  source_address: \"1.1.1\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Routing.MulticastIP != "224.0.23.12" {
		t.Errorf("MulticastIP = %q, want default", cfg.Routing.MulticastIP)
	}
	if cfg.Store.Path != "./knxnetip.db" {
		t.Errorf("Store.Path = %q, want default", cfg.Store.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeTempConfig(t, "routing:\n  enabled: true\n  source_address: \"1.1.1\"\n")
	t.Setenv("KNXNETIP_ROUTING_MULTICAST_IP", "239.1.2.3")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Routing.MulticastIP != "239.1.2.3" {
		t.Errorf("MulticastIP = %q, want env override", cfg.Routing.MulticastIP)
	}
}

func TestValidateRequiresOneClient(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when neither routing nor tunnel is enabled")
	}
}

func TestValidateRoutingRequiresSourceAddress(t *testing.T) {
	cfg := defaultConfig()
	cfg.Routing.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for routing.enabled without source_address")
	}
}

func TestValidateStatusAPIPortRange(t *testing.T) {
	cfg := defaultConfig()
	cfg.Routing.Enabled = true
	cfg.Routing.SourceAddress = "1.1.1"
	cfg.StatusAPI.Enabled = true
	cfg.StatusAPI.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range status_api.port")
	}
}
