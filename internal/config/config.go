package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DataDir string

	DBPath             string
	DBMaxOpenConns     int
	DBBusyTimeout      time.Duration
	BackupDir          string
	KeyFile            string
	AuditLogPath       string
	AllowDirectRestore bool

	LoginWindow    time.Duration
	LoginThreshold int
	LoginCooldown  time.Duration

	SuperAdminPassword string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"data_dir":             "./data",
	"db_path":              "",
	"db_max_open_conns":    4,
	"db_busy_timeout":      "5s",
	"backup_dir":           "",
	"key_file":             "",
	"audit_log_path":       "",
	"allow_direct_restore": false,
	"login_window":         "5m",
	"login_threshold":      3,
	"login_cooldown":       "2m",
	"super_admin_password": "",
	"log_level":            "info",
	"log_format":           "console",
}

// Load reads configuration from UM_* environment variables and, when path is
// not empty, from a YAML/JSON/TOML file understood by viper. Environment wins.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		DataDir:            v.GetString("data_dir"),
		DBPath:             v.GetString("db_path"),
		DBMaxOpenConns:     v.GetInt("db_max_open_conns"),
		DBBusyTimeout:      v.GetDuration("db_busy_timeout"),
		BackupDir:          v.GetString("backup_dir"),
		KeyFile:            v.GetString("key_file"),
		AuditLogPath:       v.GetString("audit_log_path"),
		AllowDirectRestore: v.GetBool("allow_direct_restore"),
		LoginWindow:        v.GetDuration("login_window"),
		LoginThreshold:     v.GetInt("login_threshold"),
		LoginCooldown:      v.GetDuration("login_cooldown"),
		SuperAdminPassword: v.GetString("super_admin_password"),
		LogLevel:           strings.ToLower(v.GetString("log_level")),
		LogFormat:          strings.ToLower(v.GetString("log_format")),
	}
	cfg.applyDerivedPaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDerivedPaths() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "app.db")
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DataDir, "backups")
	}
	if c.KeyFile == "" {
		c.KeyFile = filepath.Join(c.DataDir, "keys", "app.key")
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = filepath.Join(c.DataDir, "logs.enc")
	}
}

func (c Config) Validate() error {
	if c.DBMaxOpenConns <= 0 {
		return fmt.Errorf("invalid DB pool config")
	}
	if c.DBBusyTimeout <= 0 {
		return fmt.Errorf("db busy timeout must be positive")
	}
	if c.LoginWindow <= 0 || c.LoginCooldown <= 0 {
		return fmt.Errorf("login window and cooldown must be positive")
	}
	if c.LoginThreshold < 1 {
		return fmt.Errorf("login threshold must be >= 1")
	}
	if filepath.Clean(c.BackupDir) == filepath.Clean(filepath.Dir(c.DBPath)) {
		return fmt.Errorf("backup dir must differ from the database directory")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("UM_LOG_FORMAT must be one of: console, json")
	}
	return nil
}
