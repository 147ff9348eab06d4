package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Cache    CacheConfig    `toml:"cache"`
	Accounts AccountsConfig `toml:"accounts"`
	Log      LogConfig      `toml:"log"`
}

type CacheConfig struct {
	Path        string `toml:"path"`
	Backend     string `toml:"backend"`
	Compression int    `toml:"compression"` // 0 disables, 1..3 = zstd fastest..better
}

type AccountsConfig struct {
	Path    string `toml:"path"`
	Backend string `toml:"backend"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		Cache: CacheConfig{
			Path:        "~/.lettera/hcache.db",
			Backend:     "bolt",
			Compression: 1,
		},
		Accounts: AccountsConfig{
			Path:    "~/.lettera/accounts.db",
			Backend: "bolt",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML config file and returns the parsed Config.
// If path is empty, the default location is tried; a missing default
// file just yields defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = expandHome("~/.lettera/config.toml")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Cache.Compression < 0 || cfg.Cache.Compression > 3 {
		return nil, fmt.Errorf("cache.compression must be 0..3, got %d", cfg.Cache.Compression)
	}

	return cfg, nil
}

// ExpandHome resolves a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	return expandHome(path)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
