// Package config exposes strongly typed runtime configuration loaded from YAML,
// with environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/repque/intraday/internal/rules"
)

// envPrefix namespaces override variables, e.g. INTRADAY_LOG_LEVEL.
const envPrefix = "intraday"

// App captures process-wide settings.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// Account holds the bankroll and the per-share commission rate.
type Account struct {
	Cash           float64 `yaml:"cash" envconfig:"CASH"`
	CommissionRate float64 `yaml:"commission_rate"`
}

// Session bounds the trading window; points outside it are ignored.
type Session struct {
	OpenHour    int `yaml:"open_hour"`
	OpenMinute  int `yaml:"open_minute"`
	CloseHour   int `yaml:"close_hour"`
	CloseMinute int `yaml:"close_minute"`
}

// Feed selects and parameterizes the price source.
type Feed struct {
	Provider         string `yaml:"provider"` // replay, synthetic, poll, stream
	DataDir          string `yaml:"data_dir"`
	Day              string `yaml:"day"` // optional YYYY-MM-DD replay filter
	QuoteURL         string `yaml:"quote_url" envconfig:"QUOTE_URL"`
	StreamURL        string `yaml:"stream_url" envconfig:"STREAM_URL"`
	PollIntervalSecs int    `yaml:"poll_interval_secs"`
}

// Strategy binds a symbol to its allocation fraction and rule lists.
type Strategy struct {
	Symbol     string       `yaml:"symbol"`
	Allocation float64      `yaml:"allocation"`
	Entry      []rules.Spec `yaml:"entry"`
	Exit       []rules.Spec `yaml:"exit"`
}

// Report configures the JSONL artifact sink; empty path disables it.
type Report struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Account    Account    `yaml:"account"`
	Session    Session    `yaml:"session"`
	Feed       Feed       `yaml:"feed"`
	Report     Report     `yaml:"report"`
	Strategies []Strategy `yaml:"strategies"`
}

// Load reads a YAML file, applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9108"
	}
	if c.Account.Cash <= 0 {
		c.Account.Cash = 25000
	}
	if c.Session == (Session{}) {
		c.Session = Session{OpenHour: 9, OpenMinute: 30, CloseHour: 16}
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "replay"
	}
	if c.Feed.PollIntervalSecs <= 0 {
		c.Feed.PollIntervalSecs = 60
	}
}

func (c *Config) validate() error {
	if len(c.Strategies) == 0 {
		return fmt.Errorf("no strategies configured")
	}
	for _, s := range c.Strategies {
		if s.Symbol == "" {
			return fmt.Errorf("strategy missing symbol")
		}
		if s.Allocation < 0 || s.Allocation > 1 {
			return fmt.Errorf("strategy %s: allocation %.2f outside [0,1]", s.Symbol, s.Allocation)
		}
		if _, err := rules.BuildAll(s.Entry); err != nil {
			return fmt.Errorf("strategy %s entry: %w", s.Symbol, err)
		}
		if _, err := rules.BuildAll(s.Exit); err != nil {
			return fmt.Errorf("strategy %s exit: %w", s.Symbol, err)
		}
	}
	return nil
}

// ReplayDay parses the optional replay day filter; zero time means all days.
func (c *Config) ReplayDay() (time.Time, error) {
	if c.Feed.Day == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse("2006-01-02", c.Feed.Day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse feed day: %w", err)
	}
	return day, nil
}
