package config

import (
	"time"

	"threshold-engine/internal/engine/scorer"
	"threshold-engine/pkg/config"
)

// Scoring holds scoring-service-specific configuration.
type Scoring struct {
	Schedule           string        `mapstructure:"schedule"`
	MaxConcurrentScore int           `mapstructure:"max_concurrent_score"`
	BenchmarkSymbol    string        `mapstructure:"benchmark_symbol"`
	VIXSymbol          string        `mapstructure:"vix_symbol"`
	PriceLookbackDays  int           `mapstructure:"price_lookback_days"`
	AlertMinScore      float64       `mapstructure:"alert_min_score"`

	RedisStreamTimeout         time.Duration `mapstructure:"redis_stream_timeout"`
	RedisStreamRetryInterval   time.Duration `mapstructure:"redis_stream_retry_interval"`
	RedisStreamMaxIdleDuration time.Duration `mapstructure:"redis_stream_max_idle_duration"`
	RedisStreamMaxRetry        int           `mapstructure:"redis_stream_max_retry"`

	Engine scorer.Params `mapstructure:"engine"`
}

// Telegram holds configuration for the Telegram notifier.
type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// YahooFinance holds the configuration for the Yahoo Finance API.
type YahooFinance struct {
	BaseURL             string `mapstructure:"base_url"`
	MaxRequestPerMinute int    `mapstructure:"max_request_per_minute"`
}

// FRED holds the configuration for the FRED API.
type FRED struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Config holds the full configuration for the scoring service.
type Config struct {
	App          config.App      `mapstructure:"app"`
	API          config.API      `mapstructure:"api"`
	Logger       config.Logger   `mapstructure:"logger"`
	Database     config.Database `mapstructure:"database"`
	Redis        config.Redis    `mapstructure:"redis"`
	Scoring      Scoring         `mapstructure:"scoring"`
	Telegram     Telegram        `mapstructure:"telegram"`
	YahooFinance YahooFinance    `mapstructure:"yahoo_finance"`
	FRED         FRED            `mapstructure:"fred"`
}

// Load loads the scoring service configuration from the given path. Engine
// parameters left unset fall back to the calibrated defaults before
// validation.
func Load(path string) (*Config, error) {
	var cfg Config
	cfg.Scoring.Engine = scorer.DefaultParams()
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Scoring.MaxConcurrentScore <= 0 {
		cfg.Scoring.MaxConcurrentScore = 8
	}
	if err := cfg.Scoring.Engine.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
