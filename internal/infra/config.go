package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting for the execution core.
// Secrets may be overridden by environment variables after load.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Engine struct {
		TickIntervalMS   int `yaml:"tick_interval_ms"`
		StaleOrderAgeSec int `yaml:"stale_order_age_sec"`
		SweepIntervalSec int `yaml:"sweep_interval_sec"`
	} `yaml:"engine"`

	Resiliency struct {
		MaxRetries         int    `yaml:"max_retries"`
		InitialBackoffMS   int    `yaml:"initial_backoff_ms"`
		MaxBackoffMS       int    `yaml:"max_backoff_ms"`
		FailureWindowSec   int    `yaml:"failure_window_sec"`
		CircuitThreshold   int    `yaml:"circuit_breaker_threshold"`
		CircuitTimeoutSec  int    `yaml:"circuit_breaker_timeout_sec"`
		DLQJournalPath     string `yaml:"dlq_journal_path"`
	} `yaml:"resiliency"`

	Venues struct {
		Bitrex struct {
			Enabled        bool   `yaml:"enabled"`
			RestURL        string `yaml:"rest_url"`
			AccessKey      string `yaml:"access_key"`
			SecretKey      string `yaml:"secret_key"`
			PollIntervalMS int    `yaml:"poll_interval_ms"`
		} `yaml:"bitrex"`
		Okanax struct {
			Enabled    bool   `yaml:"enabled"`
			RestURL    string `yaml:"rest_url"`
			WSURL      string `yaml:"ws_url"`
			AccessKey  string `yaml:"access_key"`
			SecretKey  string `yaml:"secret_key"`
			Passphrase string `yaml:"passphrase"`
		} `yaml:"okanax"`
		Paper struct {
			Enabled             bool              `yaml:"enabled"`
			InitialBalanceQuote string            `yaml:"initial_balance_quote"`
			MarkPrices          map[string]string `yaml:"mark_prices"`
		} `yaml:"paper"`
	} `yaml:"venues"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // "text" or "json"
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies env overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.TickIntervalMS <= 0 {
		c.Engine.TickIntervalMS = 100
	}
	if c.Engine.StaleOrderAgeSec <= 0 {
		c.Engine.StaleOrderAgeSec = 300
	}
	if c.Engine.SweepIntervalSec <= 0 {
		c.Engine.SweepIntervalSec = 30
	}
	if c.Resiliency.MaxRetries <= 0 {
		c.Resiliency.MaxRetries = 3
	}
	if c.Resiliency.InitialBackoffMS <= 0 {
		c.Resiliency.InitialBackoffMS = 500
	}
	if c.Resiliency.MaxBackoffMS <= 0 {
		c.Resiliency.MaxBackoffMS = 30000
	}
	if c.Resiliency.FailureWindowSec <= 0 {
		c.Resiliency.FailureWindowSec = 300
	}
	if c.Resiliency.CircuitThreshold <= 0 {
		c.Resiliency.CircuitThreshold = 5
	}
	if c.Resiliency.CircuitTimeoutSec <= 0 {
		c.Resiliency.CircuitTimeoutSec = 60
	}
	if c.Venues.Bitrex.PollIntervalMS <= 0 {
		c.Venues.Bitrex.PollIntervalMS = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Venues.Bitrex.Enabled {
		if !hasPrefix(c.Venues.Bitrex.RestURL, "http://") && !hasPrefix(c.Venues.Bitrex.RestURL, "https://") {
			return fmt.Errorf("invalid bitrex REST URL: %s", c.Venues.Bitrex.RestURL)
		}
	}
	if c.Venues.Okanax.Enabled {
		if !hasPrefix(c.Venues.Okanax.WSURL, "ws://") && !hasPrefix(c.Venues.Okanax.WSURL, "wss://") {
			return fmt.Errorf("invalid okanax WS URL: %s", c.Venues.Okanax.WSURL)
		}
		if !hasPrefix(c.Venues.Okanax.RestURL, "http://") && !hasPrefix(c.Venues.Okanax.RestURL, "https://") {
			return fmt.Errorf("invalid okanax REST URL: %s", c.Venues.Okanax.RestURL)
		}
	}
	if !c.Venues.Bitrex.Enabled && !c.Venues.Okanax.Enabled && !c.Venues.Paper.Enabled {
		return fmt.Errorf("at least one venue must be enabled")
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// overrideWithEnv applies environment variables over file values.
// Secrets belong in the environment, not the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.Venues.Bitrex.SecretKey != "" || cfg.Venues.Okanax.SecretKey != "" {
		fmt.Println("⚠️  SECURITY WARNING: API secrets found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - AUTOTRADER_BITREX_KEY, AUTOTRADER_BITREX_SECRET")
		fmt.Println("   - AUTOTRADER_OKANAX_KEY, AUTOTRADER_OKANAX_SECRET, AUTOTRADER_OKANAX_PASSPHRASE")
	}

	if key := os.Getenv("AUTOTRADER_BITREX_KEY"); key != "" {
		cfg.Venues.Bitrex.AccessKey = key
	}
	if secret := os.Getenv("AUTOTRADER_BITREX_SECRET"); secret != "" {
		cfg.Venues.Bitrex.SecretKey = secret
	}
	if key := os.Getenv("AUTOTRADER_OKANAX_KEY"); key != "" {
		cfg.Venues.Okanax.AccessKey = key
	}
	if secret := os.Getenv("AUTOTRADER_OKANAX_SECRET"); secret != "" {
		cfg.Venues.Okanax.SecretKey = secret
	}
	if pass := os.Getenv("AUTOTRADER_OKANAX_PASSPHRASE"); pass != "" {
		cfg.Venues.Okanax.Passphrase = pass
	}
}
