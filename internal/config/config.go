package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults for a locally running group service.
const (
	DefaultServerURL = "http://localhost:8080/api"
	DefaultSocketURL = "ws://localhost:8080/ws"
)

// Config represents the global ~/.huddle/config.toml.
type Config struct {
	ServerURL   string `toml:"server_url"`
	SocketURL   string `toml:"socket_url"`
	DefaultUser string `toml:"default_user"`
	Archive     bool   `toml:"archive"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to built-in
// defaults when the file does not exist yet.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return &Config{
			ServerURL: DefaultServerURL,
			SocketURL: DefaultSocketURL,
		}, nil
	}
	return nil, err
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
