package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize when the file or env leave a knob unset.
// The sync constants come from the reference client behavior.
const (
	DefaultSnapshotWindow  = 100
	DefaultMessageDebounce = 100 * time.Millisecond
	DefaultListDebounce    = 50 * time.Millisecond
	DefaultSendTimeout     = 30 * time.Second
	DefaultSendAttempts    = 5
	DefaultMaxTextLen      = 4096
	DefaultEditWindow      = 15 * time.Minute
	DefaultMinSendInterval = 500 * time.Millisecond
	DefaultMaxPerWindow    = 30
	DefaultRateWindow      = time.Minute
	DefaultRetentionPeriod = 720 * time.Hour // 30 days
)

// Load reads a YAML config file from path. A missing file is an error the
// caller may treat as "use defaults" via os.IsNotExist.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides mutates cfg from MSGSYNC_* environment variables.
// Returns true if any override was applied.
func ApplyEnvOverrides(cfg *Config) bool {
	used := false
	if v := os.Getenv("MSGSYNC_ADDR"); v != "" {
		cfg.Server.Address = v
		used = true
	}
	if v := os.Getenv("MSGSYNC_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			used = true
		}
	}
	if v := os.Getenv("MSGSYNC_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("MSGSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("MSGSYNC_RETENTION_ENABLED"); v != "" {
		cfg.Retention.Enabled = v == "1" || v == "true"
		used = true
	}
	if v := os.Getenv("MSGSYNC_RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
		used = true
	}
	if v := os.Getenv("MSGSYNC_RETENTION_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.Period = Duration(d)
			used = true
		}
	}
	return used
}

// Normalize fills unset fields with defaults so downstream code never
// checks for zero values.
func (c *Config) Normalize() {
	if c.Sync.SnapshotWindow <= 0 {
		c.Sync.SnapshotWindow = DefaultSnapshotWindow
	}
	if c.Sync.MessageDebounce <= 0 {
		c.Sync.MessageDebounce = Duration(DefaultMessageDebounce)
	}
	if c.Sync.ListDebounce <= 0 {
		c.Sync.ListDebounce = Duration(DefaultListDebounce)
	}
	if c.Sync.SendTimeout <= 0 {
		c.Sync.SendTimeout = Duration(DefaultSendTimeout)
	}
	if c.Sync.SendAttempts <= 0 {
		c.Sync.SendAttempts = DefaultSendAttempts
	}
	if c.Sync.MaxTextLen <= 0 {
		c.Sync.MaxTextLen = DefaultMaxTextLen
	}
	if c.Sync.EditWindow <= 0 {
		c.Sync.EditWindow = Duration(DefaultEditWindow)
	}
	if c.RateLimit.MinInterval <= 0 {
		c.RateLimit.MinInterval = Duration(DefaultMinSendInterval)
	}
	if c.RateLimit.MaxPerWindow <= 0 {
		c.RateLimit.MaxPerWindow = DefaultMaxPerWindow
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = Duration(DefaultRateWindow)
	}
	if c.Retention.Period <= 0 {
		c.Retention.Period = Duration(DefaultRetentionPeriod)
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "./.msgsync"
	}
}
