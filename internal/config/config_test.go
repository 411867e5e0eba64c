package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the user config dir at a temp dir for the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "wfmirror")
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.APIKey != "" {
		t.Errorf("APIKey = %q, want empty default", cfg.APIKey)
	}
	if cfg.DBPath != filepath.Join(dir, "mirror.db") {
		t.Errorf("DBPath = %q, want under config dir", cfg.DBPath)
	}
	if cfg.FullSyncInterval != 60*time.Second {
		t.Errorf("FullSyncInterval = %v, want 60s", cfg.FullSyncInterval)
	}
	if cfg.StalenessThreshold != time.Hour {
		t.Errorf("StalenessThreshold = %v, want 1h", cfg.StalenessThreshold)
	}
	if cfg.LeaseTTL != 5*time.Minute {
		t.Errorf("LeaseTTL = %v, want 5m", cfg.LeaseTTL)
	}
	if cfg.ReconcileDepth != 1 {
		t.Errorf("ReconcileDepth = %d, want 1", cfg.ReconcileDepth)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}

	content := `api_key = "from-file"
full_sync_interval = "90s"
excluded_names = ["private", "archive"]
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.APIKey)
	}
	if cfg.FullSyncInterval != 90*time.Second {
		t.Errorf("FullSyncInterval = %v, want 90s", cfg.FullSyncInterval)
	}
	if len(cfg.ExcludedNames) != 2 || cfg.ExcludedNames[0] != "private" {
		t.Errorf("ExcludedNames = %v, want [private archive]", cfg.ExcludedNames)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`api_key = "from-file"`), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Setenv("WFMIRROR_API_KEY", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env to win", cfg.APIKey)
	}
}

func TestSave_PreservesExistingKeys(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`db_path = "/custom/mirror.db"`), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	path, err := Save("new-key")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("Save() path = %q, want config.toml in config dir", path)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() failed: %v", err)
	}
	if cfg.APIKey != "new-key" {
		t.Errorf("APIKey = %q, want new-key", cfg.APIKey)
	}
	if cfg.DBPath != "/custom/mirror.db" {
		t.Errorf("DBPath = %q, want preserved custom path", cfg.DBPath)
	}
}
