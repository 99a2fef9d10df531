// Package toml loads the ragchat configuration file.
package toml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/ragchat"
	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Config is the contents of the configuration file.
type Config struct {
	Endpoint       string           `toml:"endpoint"`
	ChatPath       string           `toml:"chat_path"`
	Store          string           `toml:"store"`
	DataDir        string           `toml:"data_dir"`
	TimeoutSeconds int              `toml:"timeout_seconds"`
	Settings       ragchat.Settings `toml:"settings"`
}

// Default returns the configuration written when no file exists.
func Default() Config {
	return Config{
		Endpoint:       "http://127.0.0.1:8000",
		ChatPath:       "/api/chat/stream",
		Store:          StoreBadger,
		DataDir:        defaultDataDir(),
		TimeoutSeconds: 60,
		Settings:       ragchat.DefaultSettings(),
	}
}

// DefaultPath returns the default location of the configuration file.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

// Timeout returns how long to wait for the response headers of a send.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	switch c.Store {
	case StoreBadger, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q (want %q or %q)", c.Store, StoreBadger, StoreSQLite)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative, got %d", c.TimeoutSeconds)
	}
	return c.Settings.Validate()
}

// LoadOrCreate reads the configuration at path. When the file does not
// exist it is created with the defaults, which are returned.
func LoadOrCreate(path string) (Config, error) {
	path = expandPath(path)
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return config, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return config, err
		}
		data, err := toml.Marshal(config)
		if err != nil {
			return config, err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return config, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}

	config.Endpoint = strings.TrimSpace(config.Endpoint)
	config.DataDir = expandPath(config.DataDir)
	if config.ChatPath == "" {
		config.ChatPath = Default().ChatPath
	}
	if config.Store == "" {
		config.Store = StoreBadger
	}
	if config.Settings.VectorStores == nil {
		config.Settings.VectorStores = []string{}
	}

	return config, config.Validate()
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		return ".ragchat"
	}
	return filepath.Join(homeDir, ".ragchat")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		if homeDir != "" {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
