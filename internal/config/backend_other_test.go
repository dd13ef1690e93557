//go:build !darwin

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestFileBackendRoundTrip verifies SetKey persists to the XDG config file
// and Load reads it back.
func TestFileBackendRoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := SetKey("server.port", "4300"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("sync.prune_missing", "true"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "emconsole", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want 4300", cfg.Server.Port)
	}
	if !cfg.Sync.PruneMissing {
		t.Error("Sync.PruneMissing = false, want true")
	}
}

// TestFileBackendCorruptFile verifies a broken config file falls back to defaults.
func TestFileBackendCorruptFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "emconsole", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

// TestFileBackendNativeTypes verifies values are written as JSON numbers and
// bools, and unset removes them from the file.
func TestFileBackendNativeTypes(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := SetKey("server.port", "4300"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("sync.prune_missing", "1"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if err := SetKey("sync.poll_interval", "5s"); err != nil {
		t.Fatalf("SetKey: %v", err)
	}

	path := filepath.Join(dir, "emconsole", "config.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var stored map[string]any
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("config file is not JSON: %v", err)
	}
	if v, ok := stored["server.port"].(float64); !ok || v != 4300 {
		t.Errorf("server.port stored as %#v, want number 4300", stored["server.port"])
	}
	if v, ok := stored["sync.prune_missing"].(bool); !ok || !v {
		t.Errorf("sync.prune_missing stored as %#v, want bool true", stored["sync.prune_missing"])
	}
	if stored["sync.poll_interval"] != "5s" {
		t.Errorf("sync.poll_interval stored as %#v", stored["sync.poll_interval"])
	}

	if err := UnsetKey("sync.prune_missing"); err != nil {
		t.Fatalf("UnsetKey: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sync.PruneMissing {
		t.Error("Sync.PruneMissing = true after unset, want default false")
	}
	if cfg.Server.Port != 4300 {
		t.Errorf("Server.Port = %d, want 4300", cfg.Server.Port)
	}
}

// TestFileBackendUnknownKeysIgnored verifies keys from other versions do not
// break loading.
func TestFileBackendUnknownKeysIgnored(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "emconsole", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"legacy.token":"x","server.port":4500}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4500 {
		t.Errorf("Server.Port = %d, want 4500", cfg.Server.Port)
	}
}
