package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"horizoncal/internal/event"
	appLog "horizoncal/internal/log"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and ICS feed.
	Listen string `yaml:"listen" json:"listen"`

	// Vault is the directory holding the notes.
	Vault string `yaml:"vault" json:"vault"`

	// PrefixPath is the vault-relative folder that holds event notes.
	PrefixPath string `yaml:"prefix_path" json:"prefix_path"`

	// Timezone overrides the detected host zone. Empty means detect.
	Timezone string `yaml:"timezone" json:"timezone"`

	// PreMarginDays and PostMarginDays widen every range query so that
	// events stored under a neighbouring day folder are still found.
	PreMarginDays  int `yaml:"pre_margin_days" json:"pre_margin_days"`
	PostMarginDays int `yaml:"post_margin_days" json:"post_margin_days"`

	// HorizonDays and BackfillDays bound the window kept fresh by the
	// periodic rescan: today minus BackfillDays to today plus HorizonDays.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// Rescan is a cron-style schedule string (e.g. "*/15 * * * *").
	Rescan string `yaml:"rescan" json:"rescan"`

	// Watch enables the filesystem watcher in serve mode.
	Watch bool `yaml:"watch" json:"watch"`

	// IndexPath is the bbolt metadata index file. Empty disables the index.
	IndexPath string `yaml:"index_path" json:"index_path"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Categories maps a bare category name to its display style.
	Categories event.Styles `yaml:"categories" json:"categories"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen = "127.0.0.1:8080"
	defaultPrefix = "horizoncal"
	defaultRescan = "*/15 * * * *"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// DefaultCategories is the category table a fresh config starts with.
func DefaultCategories() event.Styles {
	return event.Styles{
		"meeting":   {Color: "#2e7d32"},
		"project":   {Color: "#6a1b9a"},
		"social":    {Color: "#ef6c00"},
		"travel":    {Color: "#00838f", EffectPriority: 1},
		"urgent":    {Color: "#c62828", EffectPriority: 5},
		"cancelled": {Opacity: intPtr(40), Strikethrough: boolPtr(true), EffectPriority: 10},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		Vault:          ".",
		PrefixPath:     defaultPrefix,
		PreMarginDays:  1,
		PostMarginDays: 1,
		HorizonDays:    30,
		BackfillDays:   7,
		Rescan:         defaultRescan,
		Watch:          true,
		LogLevel:       string(appLog.LevelInfo),
		Categories:     DefaultCategories(),
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Vault == "" {
		c.Vault = "."
	}
	c.PrefixPath = strings.Trim(filepath.ToSlash(c.PrefixPath), "/")
	if c.PrefixPath == "" {
		c.PrefixPath = defaultPrefix
	}
	if c.PreMarginDays < 0 {
		c.PreMarginDays = 0
	}
	if c.PostMarginDays < 0 {
		c.PostMarginDays = 0
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 30
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.Rescan == "" {
		c.Rescan = defaultRescan
	}
	c.LogLevel = string(appLog.ParseLevel(c.LogLevel))
	if c.Categories == nil {
		c.Categories = event.Styles{}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Timezone != "" {
		if err := event.ValidateZone(c.Timezone).Err; err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth: username is empty")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// caller decides whether an unsaved default is good enough
				return cfg, err
			}
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".horizoncal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// VaultRoot resolves Vault relative to the config file's directory.
func (c *Config) VaultRoot(configPath string) string {
	if filepath.IsAbs(c.Vault) {
		return c.Vault
	}
	return filepath.Join(filepath.Dir(configPath), c.Vault)
}
