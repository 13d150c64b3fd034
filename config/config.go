// Package config loads the operational (non-domain) configuration:
// defaults, then an optional YAML file, then FLAIRWARDEN_* environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the engine's runtime configuration. Per-community
// behavior lives in the wiki-backed rule configs, not here.
type Config struct {
	DataDir string `koanf:"data_dir"`

	Debug   bool `koanf:"debug"`
	Verbose bool `koanf:"verbose"`

	BotUsername          string `koanf:"bot_username"`
	ConfigWikiPage       string `koanf:"config_wiki_page"`
	AutoAcceptModInvites bool   `koanf:"auto_accept_mod_invites"`
	AllowBanAndNuke      bool   `koanf:"allow_ban_and_nuke"`

	// Operator notification channel; empty disables it.
	NotificationWebhook string `koanf:"notification_webhook"`

	// Mod-log entries from these accounts are ignored.
	IgnoredAccounts []string `koanf:"ignored_accounts"`

	ActionConcurrency    int           `koanf:"action_concurrency"`
	MaxProcessingRetries int           `koanf:"max_processing_retries"`
	ProcessingRetryDelay time.Duration `koanf:"processing_retry_delay"`
	ProcessPollInterval  time.Duration `koanf:"process_poll_interval"`
	PMPollInterval       time.Duration `koanf:"pm_poll_interval"`
	IngestConcurrency    int           `koanf:"ingest_concurrency"`
	StartupFetchDelay    time.Duration `koanf:"startup_fetch_delay"`
}

func defaults() map[string]any {
	return map[string]any{
		"data_dir":                defaultDataDir(),
		"debug":                   false,
		"verbose":                 false,
		"config_wiki_page":        "flair_helper",
		"auto_accept_mod_invites": false,
		"allow_ban_and_nuke":      true,
		"action_concurrency":      2,
		"max_processing_retries":  3,
		"processing_retry_delay":  "60s",
		"process_poll_interval":   "1s",
		"pm_poll_interval":        "120s",
		"ingest_concurrency":      3,
		"startup_fetch_delay":     "90s",
	}
}

// Load builds the configuration. path names an optional YAML file; an
// empty path skips the file layer. Environment variables use the
// FLAIRWARDEN_ prefix with underscores, e.g. FLAIRWARDEN_DATA_DIR.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("FLAIRWARDEN_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "FLAIRWARDEN_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.ActionConcurrency < 1 {
		return fmt.Errorf("action_concurrency must be >= 1")
	}
	if c.IngestConcurrency < 1 {
		return fmt.Errorf("ingest_concurrency must be >= 1")
	}
	if c.MaxProcessingRetries < 1 {
		return fmt.Errorf("max_processing_retries must be >= 1")
	}
	if c.ConfigWikiPage == "" {
		return fmt.Errorf("config_wiki_page is required")
	}
	if err := os.MkdirAll(c.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// IsIgnored reports whether a mod-log account is on the ignore list.
// Matching is case-insensitive.
func (c *Config) IsIgnored(account string) bool {
	for _, a := range c.IgnoredAccounts {
		if strings.EqualFold(a, account) {
			return true
		}
	}
	return false
}

// DBPath returns the path of the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "flairwarden.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "flairwarden")
	}
	return filepath.Join(home, ".config", "flairwarden")
}
