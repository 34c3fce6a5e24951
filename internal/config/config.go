package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		MaxAge int    `yaml:"max_age"`
	} `yaml:"logging"`
	Providers struct {
		// BasicSource names the provider whose fundamentals are merged into bars.
		BasicSource string `yaml:"basic_source"`
		Tushare     struct {
			Token              string `yaml:"token"`
			BaseURL            string `yaml:"base_url"`
			RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
			Priority           int    `yaml:"priority"`
			Verify              *bool  `yaml:"verify"`
		} `yaml:"tushare"`
		EastMoney struct {
			Enabled            *bool   `yaml:"enabled"`
			KlineURL           string  `yaml:"kline_url"`
			QuoteURL           string  `yaml:"quote_url"`
			Priority           int     `yaml:"priority"`
			RateLimitPerMinute int     `yaml:"rate_limit_per_minute"`
			RequestsPerSecond  float64 `yaml:"requests_per_second"`
		} `yaml:"eastmoney"`
		Yahoo struct {
			Enabled            *bool  `yaml:"enabled"`
			BaseURL            string `yaml:"base_url"`
			Priority           int    `yaml:"priority"`
			RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
		} `yaml:"yahoo"`
	} `yaml:"providers"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Multiplier  time.Duration `yaml:"multiplier"`
		MinDelay    time.Duration `yaml:"min_delay"`
		MaxDelay    time.Duration `yaml:"max_delay"`
	} `yaml:"retry"`
	Ingest struct {
		Workers      int  `yaml:"workers"`
		LookbackDays int  `yaml:"lookback_days"`
		HistoryDays  int  `yaml:"history_days"`
		RequireBasic bool `yaml:"require_basic"`
	} `yaml:"ingest"`
	Watchlist []string `yaml:"watchlist"`
	Schedule  struct {
		DailyCron string `yaml:"daily_cron"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads .env and the YAML file, then applies environment overrides and
// defaults. Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TUSHARE_TOKEN"); v != "" {
		cfg.Providers.Tushare.Token = v
	}
	if v := os.Getenv("DAILY_BASIC_SOURCE"); v != "" {
		cfg.Providers.BasicSource = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("STOCK_LIST"); v != "" {
		cfg.Watchlist = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_DAILY"); v != "" {
		cfg.Schedule.DailyCron = v
	}
	if v := os.Getenv("INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Workers = n
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/barledger.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Providers.BasicSource == "" {
		c.Providers.BasicSource = "tushare"
	}

	ts := &c.Providers.Tushare
	if ts.RateLimitPerMinute == 0 {
		ts.RateLimitPerMinute = 80
	}
	if ts.Priority == 0 {
		ts.Priority = 2
	}
	if ts.Verify == nil {
		ts.Verify = boolPtr(true)
	}

	em := &c.Providers.EastMoney
	if em.Enabled == nil {
		em.Enabled = boolPtr(true)
	}
	if em.Priority == 0 {
		em.Priority = 1
	}
	if em.RequestsPerSecond == 0 {
		em.RequestsPerSecond = 5
	}

	yh := &c.Providers.Yahoo
	if yh.Enabled == nil {
		yh.Enabled = boolPtr(true)
	}
	if yh.Priority == 0 {
		yh.Priority = 4
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = time.Second
	}
	if c.Retry.MinDelay == 0 {
		c.Retry.MinDelay = 2 * time.Second
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = 30 * time.Second
	}

	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 2
	}
	if c.Ingest.LookbackDays == 0 {
		c.Ingest.LookbackDays = 45
	}
	if c.Ingest.HistoryDays == 0 {
		c.Ingest.HistoryDays = 30
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 18 * * 1-5"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Providers.BasicSource {
	case "tushare", "eastmoney", "none":
	default:
		return fmt.Errorf("providers.basic_source must be tushare, eastmoney or none, got %q", c.Providers.BasicSource)
	}
	if c.Providers.Tushare.Token == "" && !c.EastMoneyEnabled() && !c.YahooEnabled() {
		return fmt.Errorf("no provider configured: set providers.tushare.token or enable eastmoney/yahoo")
	}
	if c.Providers.Tushare.RateLimitPerMinute < 0 {
		return fmt.Errorf("providers.tushare.rate_limit_per_minute must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.MinDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.min_delay must not exceed retry.max_delay")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be positive")
	}
	if c.Ingest.LookbackDays < 0 {
		return fmt.Errorf("ingest.lookback_days must not be negative")
	}
	return nil
}

// EastMoneyEnabled reports whether the EastMoney provider is switched on.
func (c *Config) EastMoneyEnabled() bool {
	return c.Providers.EastMoney.Enabled == nil || *c.Providers.EastMoney.Enabled
}

// YahooEnabled reports whether the Yahoo provider is switched on.
func (c *Config) YahooEnabled() bool {
	return c.Providers.Yahoo.Enabled == nil || *c.Providers.Yahoo.Enabled
}

// TelegramEnabled reports whether failure alerts can be sent.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
