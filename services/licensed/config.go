package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	envTelegramToken = "LICENSED_TELEGRAM_TOKEN"

	// Mainnet USDT-TRC20 contract.
	defaultTokenContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

// duration wraps time.Duration so it can be written as "2m" or "720h" in TOML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for the license daemon.
type Config struct {
	ListenAddress   string   `toml:"ListenAddress"`
	DatabasePath    string   `toml:"DatabasePath"`
	TelegramAPIURL  string   `toml:"TelegramAPIURL"`
	TelegramToken   string   `toml:"TelegramToken"`
	TronGridAPIURL  string   `toml:"TronGridAPIURL"`
	ReceiveAddress  string   `toml:"ReceiveAddress"`
	RequiredAmount  string   `toml:"RequiredAmount"`
	TokenSymbol     string   `toml:"TokenSymbol"`
	TokenContract   string   `toml:"TokenContract"`
	TokenDecimals   int      `toml:"TokenDecimals"`
	LicenseLifetime duration `toml:"LicenseLifetime"`
	PollInterval    duration `toml:"PollInterval"`
	PendingTTL      duration `toml:"PendingTTL"`
	LogFile         string   `toml:"LogFile"`
	Environment     string   `toml:"Environment"`

	// RequiredBaseUnits is RequiredAmount converted to integer token base
	// units; derived during Load, never read from the file.
	RequiredBaseUnits int64 `toml:"-"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress:   ":8090",
		DatabasePath:    "licensed.db",
		TelegramAPIURL:  "https://api.telegram.org",
		TronGridAPIURL:  "https://api.trongrid.io",
		RequiredAmount:  "30",
		TokenSymbol:     "USDT",
		TokenContract:   defaultTokenContract,
		TokenDecimals:   6,
		LicenseLifetime: duration{30 * 24 * time.Hour},
		PollInterval:    duration{2 * time.Minute},
	}
}

// LoadConfig reads the TOML file at path (optional) and applies environment
// overrides for secrets. The returned config is validated and ready to use.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramToken)); token != "" {
		cfg.TelegramToken = token
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	required, err := parseBaseUnits(cfg.RequiredAmount, cfg.TokenDecimals)
	if err != nil {
		return nil, fmt.Errorf("parse RequiredAmount: %w", err)
	}
	if required <= 0 {
		return nil, errors.New("RequiredAmount must be positive")
	}
	cfg.RequiredBaseUnits = required
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.TelegramToken) == "" {
		return fmt.Errorf("telegram token required (set TelegramToken or %s)", envTelegramToken)
	}
	if strings.TrimSpace(c.ReceiveAddress) == "" {
		return errors.New("ReceiveAddress is required")
	}
	if strings.TrimSpace(c.TokenSymbol) == "" {
		return errors.New("TokenSymbol is required")
	}
	if strings.TrimSpace(c.TokenContract) == "" {
		return errors.New("TokenContract is required")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 18 {
		return fmt.Errorf("TokenDecimals out of range: %d", c.TokenDecimals)
	}
	if c.LicenseLifetime.Duration <= 0 {
		return errors.New("LicenseLifetime must be positive")
	}
	if c.PollInterval.Duration <= 0 {
		return errors.New("PollInterval must be positive")
	}
	if c.PendingTTL.Duration < 0 {
		return errors.New("PendingTTL must not be negative")
	}
	return nil
}
