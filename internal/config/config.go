package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultReconnectDelayMS is the fixed delay before a dropped session is
// reconnected.
const DefaultReconnectDelayMS = 5000

// Config represents the daemon's config.toml.
type Config struct {
	BaseDir          string `toml:"base_dir"`
	ReconnectDelayMS int    `toml:"reconnect_delay_ms"`
	DeviceName       string `toml:"device_name"`
}

// ReconnectDelay returns the reconnect delay as a duration.
func (c *Config) ReconnectDelay() time.Duration {
	ms := c.ReconnectDelayMS
	if ms <= 0 {
		ms = DefaultReconnectDelayMS
	}
	return time.Duration(ms) * time.Millisecond
}

// Default returns the config used when no file exists.
func Default(baseDir string) *Config {
	return &Config{
		BaseDir:          baseDir,
		ReconnectDelayMS: DefaultReconnectDelayMS,
		DeviceName:       "wamux",
	}
}

// Load reads config from the given path. A missing file is not an error:
// defaults rooted at fallbackBaseDir are returned instead.
func Load(path, fallbackBaseDir string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return Default(fallbackBaseDir), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = fallbackBaseDir
	}
	if cfg.ReconnectDelayMS <= 0 {
		cfg.ReconnectDelayMS = DefaultReconnectDelayMS
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "wamux"
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
