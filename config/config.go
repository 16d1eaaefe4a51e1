// Package config loads the sentinel configuration from config.json and
// applies environment variable overrides on top. Environment always
// wins so deployments can tune a shared file per instance.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	App          AppConfig          `json:"app"`
	Feed         FeedConfig         `json:"feed"`
	Pipeline     PipelineConfig     `json:"pipeline"`
	Indicators   IndicatorConfig    `json:"indicators"`
	Dedup        DedupConfig        `json:"dedup"`
	Notification NotificationConfig `json:"notification"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Server       ServerConfig       `json:"server"`
	Auth         AuthConfig         `json:"auth"`
	Logging      LoggingConfig      `json:"logging"`
}

// AppConfig holds the instrument under watch
type AppConfig struct {
	Instrument string `json:"instrument"`
}

// FeedConfig holds the market-data provider settings
type FeedConfig struct {
	BaseURL       string        `json:"base_url"`
	APIKey        string        `json:"api_key"`
	Timeout       time.Duration `json:"timeout"`
	StreamEnabled bool          `json:"stream_enabled"`
	StreamURL     string        `json:"stream_url"`
}

// PipelineConfig holds the cycle and resilience settings
type PipelineConfig struct {
	CycleInterval    time.Duration `json:"cycle_interval"`
	WindowSize       int           `json:"window_size"`
	FullRefreshEvery time.Duration `json:"full_refresh_every"`
	FailureThreshold int           `json:"failure_threshold"`
	RetryMaxAttempts int           `json:"retry_max_attempts"`
	RetryInitialWait time.Duration `json:"retry_initial_wait"`
	RetryMaxWait     time.Duration `json:"retry_max_wait"`
}

// IndicatorConfig holds the indicator periods
type IndicatorConfig struct {
	RSIPeriod        int     `json:"rsi_period"`
	MACDFastPeriod   int     `json:"macd_fast_period"`
	MACDSlowPeriod   int     `json:"macd_slow_period"`
	MACDSignalPeriod int     `json:"macd_signal_period"`
	BBPeriod         int     `json:"bb_period"`
	BBStdDev         float64 `json:"bb_std_dev"`
}

// DedupConfig holds the duplicate-suppression window
type DedupConfig struct {
	Lookback time.Duration `json:"lookback"`
}

// NotificationConfig holds dispatch policy and channel settings
type NotificationConfig struct {
	MinConfidence float64        `json:"min_confidence"`
	MaxPerCycle   int            `json:"max_per_cycle"`
	MaxPerWindow  int            `json:"max_per_window"`
	RateWindow    time.Duration  `json:"rate_window"`
	Telegram      TelegramConfig `json:"telegram"`
	Webhook       WebhookConfig  `json:"webhook"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// DatabaseConfig holds the postgres connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the redis connection for the send-history rate limit
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ServerConfig holds the monitor API settings
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`  // seconds
	WriteTimeout    int    `json:"write_timeout"` // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds the bearer-token settings for the monitor API
type AuthConfig struct {
	Enabled       bool          `json:"enabled"`
	JWTSecret     string        `json:"jwt_secret"`
	TokenDuration time.Duration `json:"token_duration"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Load reads config.json if present and applies environment overrides
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides and fills
// unset values with their defaults
func applyEnvOverrides(cfg *Config) {
	cfg.App.Instrument = getEnvOrDefault("SENTINEL_INSTRUMENT", cfg.App.Instrument)
	if cfg.App.Instrument == "" {
		cfg.App.Instrument = "EURUSD"
	}

	cfg.Feed.BaseURL = getEnvOrDefault("FEED_BASE_URL", cfg.Feed.BaseURL)
	cfg.Feed.APIKey = getEnvOrDefault("FEED_API_KEY", cfg.Feed.APIKey)
	cfg.Feed.Timeout = getEnvDurationOrDefault("FEED_TIMEOUT", orDuration(cfg.Feed.Timeout, 30*time.Second))
	cfg.Feed.StreamEnabled = getEnvOrDefault("FEED_STREAM_ENABLED", boolStr(cfg.Feed.StreamEnabled)) == "true"
	cfg.Feed.StreamURL = getEnvOrDefault("FEED_STREAM_URL", cfg.Feed.StreamURL)

	cfg.Pipeline.CycleInterval = getEnvDurationOrDefault("PIPELINE_CYCLE_INTERVAL", orDuration(cfg.Pipeline.CycleInterval, 5*time.Minute))
	cfg.Pipeline.WindowSize = getEnvIntOrDefault("PIPELINE_WINDOW_SIZE", orInt(cfg.Pipeline.WindowSize, 1000))
	cfg.Pipeline.FullRefreshEvery = getEnvDurationOrDefault("PIPELINE_FULL_REFRESH_EVERY", orDuration(cfg.Pipeline.FullRefreshEvery, 24*time.Hour))
	cfg.Pipeline.FailureThreshold = getEnvIntOrDefault("PIPELINE_FAILURE_THRESHOLD", orInt(cfg.Pipeline.FailureThreshold, 5))
	cfg.Pipeline.RetryMaxAttempts = getEnvIntOrDefault("PIPELINE_RETRY_MAX_ATTEMPTS", orInt(cfg.Pipeline.RetryMaxAttempts, 3))
	cfg.Pipeline.RetryInitialWait = getEnvDurationOrDefault("PIPELINE_RETRY_INITIAL_WAIT", orDuration(cfg.Pipeline.RetryInitialWait, 2*time.Second))
	cfg.Pipeline.RetryMaxWait = getEnvDurationOrDefault("PIPELINE_RETRY_MAX_WAIT", orDuration(cfg.Pipeline.RetryMaxWait, 30*time.Second))

	cfg.Indicators.RSIPeriod = getEnvIntOrDefault("INDICATOR_RSI_PERIOD", orInt(cfg.Indicators.RSIPeriod, 14))
	cfg.Indicators.MACDFastPeriod = getEnvIntOrDefault("INDICATOR_MACD_FAST", orInt(cfg.Indicators.MACDFastPeriod, 12))
	cfg.Indicators.MACDSlowPeriod = getEnvIntOrDefault("INDICATOR_MACD_SLOW", orInt(cfg.Indicators.MACDSlowPeriod, 26))
	cfg.Indicators.MACDSignalPeriod = getEnvIntOrDefault("INDICATOR_MACD_SIGNAL", orInt(cfg.Indicators.MACDSignalPeriod, 9))
	cfg.Indicators.BBPeriod = getEnvIntOrDefault("INDICATOR_BB_PERIOD", orInt(cfg.Indicators.BBPeriod, 20))
	cfg.Indicators.BBStdDev = getEnvFloatOrDefault("INDICATOR_BB_STD_DEV", orFloat(cfg.Indicators.BBStdDev, 2.0))

	cfg.Dedup.Lookback = getEnvDurationOrDefault("DEDUP_LOOKBACK", orDuration(cfg.Dedup.Lookback, time.Hour))

	cfg.Notification.MinConfidence = getEnvFloatOrDefault("NOTIFY_MIN_CONFIDENCE", orFloat(cfg.Notification.MinConfidence, 60))
	cfg.Notification.MaxPerCycle = getEnvIntOrDefault("NOTIFY_MAX_PER_CYCLE", orInt(cfg.Notification.MaxPerCycle, 3))
	cfg.Notification.MaxPerWindow = getEnvIntOrDefault("NOTIFY_MAX_PER_WINDOW", orInt(cfg.Notification.MaxPerWindow, 10))
	cfg.Notification.RateWindow = getEnvDurationOrDefault("NOTIFY_RATE_WINDOW", orDuration(cfg.Notification.RateWindow, time.Hour))
	cfg.Notification.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolStr(cfg.Notification.Telegram.Enabled)) == "true"
	cfg.Notification.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.Notification.Telegram.BotToken)
	cfg.Notification.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.Notification.Telegram.ChatID)
	cfg.Notification.Webhook.Enabled = getEnvOrDefault("WEBHOOK_ENABLED", boolStr(cfg.Notification.Webhook.Enabled)) == "true"
	cfg.Notification.Webhook.URL = getEnvOrDefault("WEBHOOK_URL", cfg.Notification.Webhook.URL)

	cfg.Database.Host = getEnvOrDefault("DB_HOST", orString(cfg.Database.Host, "localhost"))
	cfg.Database.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.Database.Port, 5432))
	cfg.Database.User = getEnvOrDefault("DB_USER", orString(cfg.Database.User, "sentinel"))
	cfg.Database.Password = getEnvOrDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnvOrDefault("DB_NAME", orString(cfg.Database.Name, "sentinel"))
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSL_MODE", orString(cfg.Database.SSLMode, "disable"))

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", orString(cfg.Redis.Address, "localhost:6379"))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Server.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", orString(cfg.Server.Host, "0.0.0.0"))
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", orInt(cfg.Server.Port, 8080))
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.Server.AllowedOrigins, "*"))
	cfg.Server.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION_MODE", boolStr(cfg.Server.ProductionMode)) == "true"
	cfg.Server.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.Server.ReadTimeout, 30))
	cfg.Server.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.Server.WriteTimeout, 30))
	cfg.Server.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.Server.ShutdownTimeout, 10))

	cfg.Auth.Enabled = getEnvOrDefault("AUTH_ENABLED", boolStr(cfg.Auth.Enabled)) == "true"
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", orDuration(cfg.Auth.TokenDuration, 24*time.Hour))

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.Logging.Level, "info"))
	cfg.Logging.Pretty = getEnvOrDefault("LOG_PRETTY", boolStr(cfg.Logging.Pretty)) == "true"
}

// Validate checks the settings that would otherwise fail at an
// inconvenient moment deep inside a cycle. Called once at startup;
// a failure here is fatal.
func (c *Config) Validate() error {
	if c.App.Instrument == "" {
		return fmt.Errorf("app.instrument must be set")
	}
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url must be set")
	}
	if c.Feed.StreamEnabled && c.Feed.StreamURL == "" {
		return fmt.Errorf("feed.stream_url must be set when streaming is enabled")
	}
	if c.Pipeline.WindowSize < 50 {
		return fmt.Errorf("pipeline.window_size %d is too small to compute indicators", c.Pipeline.WindowSize)
	}
	if c.Indicators.MACDFastPeriod >= c.Indicators.MACDSlowPeriod {
		return fmt.Errorf("indicators: macd fast period %d must be below slow period %d",
			c.Indicators.MACDFastPeriod, c.Indicators.MACDSlowPeriod)
	}
	if c.Notification.Telegram.Enabled && (c.Notification.Telegram.BotToken == "" || c.Notification.Telegram.ChatID == "") {
		return fmt.Errorf("notification.telegram requires bot_token and chat_id")
	}
	if c.Notification.Webhook.Enabled && c.Notification.Webhook.URL == "" {
		return fmt.Errorf("notification.webhook requires url")
	}
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
