package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sync      SyncConfig      `yaml:"sync"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the debug HTTP listener and local store location.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DBPath  string `yaml:"db_path"`
}

// Addr returns the combined listen address.
func (s ServerConfig) Addr() string {
	if s.Address == "" && s.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// SyncConfig tunes the synchronization core.
type SyncConfig struct {
	// SnapshotWindow caps how many recent messages a live subscription
	// carries; older history stays in the local store.
	SnapshotWindow int `yaml:"snapshot_window"`
	// MessageDebounce coalesces bursts of message snapshots.
	MessageDebounce Duration `yaml:"message_debounce"`
	// ListDebounce coalesces bursts of conversation-list snapshots.
	ListDebounce Duration `yaml:"list_debounce"`
	// SendTimeout bounds the remote dual write; a send still pending past
	// it becomes an error.
	SendTimeout Duration `yaml:"send_timeout"`
	// SendAttempts bounds backoff retries for transient remote failures.
	SendAttempts int `yaml:"send_attempts"`
	// MaxTextLen rejects oversized messages before any state mutation.
	MaxTextLen int `yaml:"max_text_len"`
	// EditWindow limits how long after creation a sender may edit.
	EditWindow Duration `yaml:"edit_window"`
}

// RateLimitConfig mirrors the client-side send limiter.
type RateLimitConfig struct {
	MinInterval  Duration `yaml:"min_interval"`
	MaxPerWindow int      `yaml:"max_per_window"`
	Window       Duration `yaml:"window"`
}

// RetentionConfig holds configuration for the local prune runner.
type RetentionConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Period  Duration `yaml:"period"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration to support YAML parsing from strings like
// "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }
