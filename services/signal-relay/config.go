package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const envAPIKey = "SIGNAL_RELAY_API_KEY"

// Config captures runtime configuration for the signal relay service.
type Config struct {
	ListenAddress string  `toml:"ListenAddress"`
	DatabasePath  string  `toml:"DatabasePath"`
	APIKey        string  `toml:"APIKey"`
	RatePerMinute float64 `toml:"RatePerMinute"`
	RateBurst     int     `toml:"RateBurst"`
	LogFile       string  `toml:"LogFile"`
	Environment   string  `toml:"Environment"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress: ":8091",
		DatabasePath:  "signal-relay.db",
		RatePerMinute: 120,
		RateBurst:     30,
	}
}

// LoadConfig reads the TOML file at path (optional) and applies environment
// overrides for secrets.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if key := strings.TrimSpace(os.Getenv(envAPIKey)); key != "" {
		cfg.APIKey = key
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key required (set APIKey or %s)", envAPIKey)
	}
	if cfg.RatePerMinute <= 0 {
		return nil, errors.New("RatePerMinute must be positive")
	}
	if cfg.RateBurst <= 0 {
		return nil, errors.New("RateBurst must be positive")
	}
	return cfg, nil
}
