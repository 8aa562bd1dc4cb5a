package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by Default and Load.
const (
	DefaultAPIBaseURL     = "https://api.rapt.chat/"
	DefaultSocketBaseURL  = "wss://api.rapt.chat/"
	DefaultPingInterval   = 20 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Duration is a time.Duration that decodes from TOML strings like "20s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.rapt/config.toml.
type Config struct {
	DefaultSession     string   `toml:"default_session"`
	APIBaseURL         string   `toml:"api_base_url"`
	SocketBaseURL      string   `toml:"socket_base_url"`
	ClientID           string   `toml:"client_id"`
	ClientSecret       string   `toml:"client_secret"`
	DeviceContactsPath string   `toml:"device_contacts_path"`
	MetricsAddr        string   `toml:"metrics_addr"`
	PingInterval       Duration `toml:"ping_interval"`
	RequestTimeout     Duration `toml:"request_timeout"`
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.SocketBaseURL == "" {
		c.SocketBaseURL = DefaultSocketBaseURL
	}
	if c.PingInterval.Duration <= 0 {
		c.PingInterval.Duration = DefaultPingInterval
	}
	if c.RequestTimeout.Duration <= 0 {
		c.RequestTimeout.Duration = DefaultRequestTimeout
	}
}

// Load reads config from the given path and fills defaults. Returns nil and
// an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
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
