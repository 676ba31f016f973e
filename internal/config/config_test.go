package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UM_DATA_DIR", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LoginWindow != 5*time.Minute || cfg.LoginThreshold != 3 || cfg.LoginCooldown != 2*time.Minute {
		t.Fatalf("unexpected throttle defaults: %+v", cfg)
	}
	if cfg.AllowDirectRestore {
		t.Fatalf("direct restore must be off by default")
	}
	if filepath.Base(cfg.DBPath) != "app.db" {
		t.Fatalf("expected derived db path, got %q", cfg.DBPath)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("UM_DATA_DIR", t.TempDir())
	t.Setenv("UM_LOGIN_THRESHOLD", "0")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected Load to fail for zero threshold")
	}
}

func TestLoadRejectsBackupDirInsideDBDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UM_DATA_DIR", dir)
	t.Setenv("UM_BACKUP_DIR", dir)
	if _, err := Load(""); err == nil {
		t.Fatalf("expected Load to fail when backups share the db dir")
	}
}

func TestLoadRejectsInvalidLogFormat(t *testing.T) {
	t.Setenv("UM_DATA_DIR", t.TempDir())
	t.Setenv("UM_LOG_FORMAT", "xml")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected Load to fail for invalid UM_LOG_FORMAT")
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "um.yaml")
	body := "data_dir: " + dir + "\nlogin_cooldown: 90s\nallow_direct_restore: true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("UM_LOGIN_COOLDOWN", "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.AllowDirectRestore {
		t.Fatalf("expected allow_direct_restore from file")
	}
	if cfg.LoginCooldown != 30*time.Second {
		t.Fatalf("expected env to override file, got %s", cfg.LoginCooldown)
	}
}
