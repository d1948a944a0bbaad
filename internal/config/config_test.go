package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{BaseDir: tmpDir, ReconnectDelayMS: 2500, DeviceName: "lab"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path, "/fallback")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.BaseDir != tmpDir {
		t.Errorf("BaseDir = %q, want %q", loaded.BaseDir, tmpDir)
	}
	if loaded.ReconnectDelay() != 2500*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want 2.5s", loaded.ReconnectDelay())
	}
	if loaded.DeviceName != "lab" {
		t.Errorf("DeviceName = %q, want lab", loaded.DeviceName)
	}
}

func TestLoadMissingGivesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml", "/base")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseDir != "/base" {
		t.Errorf("BaseDir = %q, want /base", cfg.BaseDir)
	}
	if cfg.ReconnectDelay() != DefaultReconnectDelayMS*time.Millisecond {
		t.Errorf("ReconnectDelay = %v, want %dms", cfg.ReconnectDelay(), DefaultReconnectDelayMS)
	}
}

func TestLoadFillsZeroDelay(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(path, []byte("base_dir = \"/b\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, "/fallback")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ReconnectDelayMS != DefaultReconnectDelayMS {
		t.Errorf("ReconnectDelayMS = %d, want %d", cfg.ReconnectDelayMS, DefaultReconnectDelayMS)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default(tmpDir)); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
