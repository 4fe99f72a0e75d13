package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/user/storewatch/pkg/logger"
)

// DefaultEnvFile is read when Load is given no path.
const DefaultEnvFile = ".env"

// Config stores all configuration for the application.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	ProxyURL  string `mapstructure:"PROXY_URL"`
	ProxyList string `mapstructure:"PROXY_LIST"`

	CheckMinDelay        float64 `mapstructure:"CHECK_MIN_DELAY"` // seconds
	CheckMaxDelay        float64 `mapstructure:"CHECK_MAX_DELAY"` // seconds
	UseSmartDelay        bool    `mapstructure:"USE_SMART_DELAY"`
	CheckIntervalMinutes int     `mapstructure:"CHECK_INTERVAL_MINUTES"`
	RequestTimeoutSecs   int     `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	VerifyDelaySecs      int     `mapstructure:"VERIFY_DELAY_SECONDS"`
	SchedulerAutostart   bool    `mapstructure:"SCHEDULER_AUTOSTART"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `mapstructure:"TELEGRAM_CHAT_ID"`
	TelegramAPIURL   string `mapstructure:"TELEGRAM_API_URL"`

	DisplayTimezone string `mapstructure:"DISPLAY_TIMEZONE"`
	ServerPort      string `mapstructure:"SERVER_PORT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`

	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	CountsCacheTTLSecs int    `mapstructure:"COUNTS_CACHE_TTL_SECONDS"`
}

var defaults = map[string]any{
	"DATABASE_URL":             "",
	"PROXY_URL":                "",
	"PROXY_LIST":               "",
	"CHECK_MIN_DELAY":          0.5,
	"CHECK_MAX_DELAY":          2.0,
	"USE_SMART_DELAY":          true,
	"CHECK_INTERVAL_MINUTES":   60,
	"REQUEST_TIMEOUT_SECONDS":  10,
	"VERIFY_DELAY_SECONDS":     1,
	"SCHEDULER_AUTOSTART":      false,
	"TELEGRAM_BOT_TOKEN":       "",
	"TELEGRAM_CHAT_ID":         "",
	"TELEGRAM_API_URL":         "https://api.telegram.org",
	"DISPLAY_TIMEZONE":         "America/Los_Angeles",
	"SERVER_PORT":              "8080",
	"LOG_LEVEL":                "info",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"COUNTS_CACHE_TTL_SECONDS": 300,
}

// Load reads configuration from envFile (DefaultEnvFile when empty) and the
// environment. The file is optional; environment variables win over it.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Attempt to read the .env file, but don't fail if it's not present
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.CheckMinDelay < 0 || c.CheckMaxDelay < 0 {
		errs = append(errs, errors.New("CHECK_MIN_DELAY and CHECK_MAX_DELAY must not be negative"))
	}
	if c.CheckMinDelay > c.CheckMaxDelay {
		errs = append(errs, fmt.Errorf("CHECK_MIN_DELAY (%g) exceeds CHECK_MAX_DELAY (%g)", c.CheckMinDelay, c.CheckMaxDelay))
	}
	if c.CheckIntervalMinutes < 1 {
		errs = append(errs, errors.New("CHECK_INTERVAL_MINUTES must be at least 1"))
	}
	if c.RequestTimeoutSecs < 1 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT_SECONDS must be at least 1"))
	}
	if c.CountsCacheTTLSecs < 1 {
		errs = append(errs, errors.New("COUNTS_CACHE_TTL_SECONDS must be at least 1"))
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil || c.DisplayTimezone == "" {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE %q is not a known timezone", c.DisplayTimezone))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MinDelay and MaxDelay are the pacing bounds as durations, for display.
func (c *Config) MinDelay() time.Duration { return seconds(c.CheckMinDelay) }

func (c *Config) MaxDelay() time.Duration { return seconds(c.CheckMaxDelay) }

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func (c *Config) VerifyDelay() time.Duration {
	return time.Duration(c.VerifyDelaySecs) * time.Second
}

func (c *Config) CountsCacheTTL() time.Duration {
	return time.Duration(c.CountsCacheTTLSecs) * time.Second
}

// Location is the display timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool { return c.RedisAddr != "" }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
