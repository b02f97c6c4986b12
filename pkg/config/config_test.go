package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  address: "127.0.0.1"
  port: 9180
  db_path: "/tmp/msgsync"
sync:
  snapshot_window: 50
  message_debounce: "100ms"
  send_timeout: 10
rate_limit:
  min_interval: "500ms"
  max_per_window: 30
  window: "60s"
retention:
  enabled: true
  cron: "0 2 * * *"
  period: "720h"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9180" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr())
	}
	if cfg.Sync.MessageDebounce.Duration() != 100*time.Millisecond {
		t.Fatalf("string duration not parsed: %v", cfg.Sync.MessageDebounce.Duration())
	}
	if cfg.Sync.SendTimeout.Duration() != 10*time.Second {
		t.Fatalf("numeric duration should mean seconds: %v", cfg.Sync.SendTimeout.Duration())
	}
	if cfg.Retention.Period.Duration() != 720*time.Hour {
		t.Fatalf("retention period not parsed: %v", cfg.Retention.Period.Duration())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MSGSYNC_PORT", "9999")
	t.Setenv("MSGSYNC_DB_PATH", "/data/msgsync")
	t.Setenv("MSGSYNC_RETENTION_PERIOD", "48h")
	var cfg Config
	if !ApplyEnvOverrides(&cfg) {
		t.Fatalf("expected overrides to apply")
	}
	if cfg.Server.Port != 9999 || cfg.Server.DBPath != "/data/msgsync" {
		t.Fatalf("server overrides not applied: %+v", cfg.Server)
	}
	if cfg.Retention.Period.Duration() != 48*time.Hour {
		t.Fatalf("retention override not applied: %v", cfg.Retention.Period)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()
	if cfg.Sync.SnapshotWindow != DefaultSnapshotWindow {
		t.Fatalf("snapshot window default missing: %d", cfg.Sync.SnapshotWindow)
	}
	if cfg.Sync.MessageDebounce.Duration() != DefaultMessageDebounce {
		t.Fatalf("debounce default missing: %v", cfg.Sync.MessageDebounce)
	}
	if cfg.RateLimit.MaxPerWindow != DefaultMaxPerWindow {
		t.Fatalf("rate window default missing: %d", cfg.RateLimit.MaxPerWindow)
	}
	if cfg.Server.DBPath == "" {
		t.Fatalf("db path default missing")
	}
}
