// Package config provides configuration management for the daily movers tool.
//
// All settings come from environment variables with sensible defaults, so the
// tool runs with zero configuration and degrades gracefully: no OpenAI key
// means heuristics-only analysis, no SMTP credentials means the digest email
// is written to disk but not sent.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Run    RunConfig    `mapstructure:"run"`
	Log    LogConfig    `mapstructure:"log"`
}

// OpenAIConfig holds LLM settings.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMTPConfig holds email delivery settings.
type SMTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	SSLPort   int    `mapstructure:"ssl_port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	FromEmail string `mapstructure:"from_email"`
	SelfEmail string `mapstructure:"self_email"`
}

// HTTPConfig holds fetch-layer settings.
type HTTPConfig struct {
	CacheDir           string        `mapstructure:"cache_dir"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	MaxRequestsPerHost int           `mapstructure:"max_requests_per_host"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// RunConfig holds batch execution settings.
type RunConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps config keys to the environment variables they read.
var envBindings = map[string]string{
	"openai.api_key":               "OPENAI_API_KEY",
	"openai.base_url":              "OPENAI_BASE_URL",
	"openai.model":                 "ANALYSIS_MODEL",
	"openai.timeout_seconds":       "OPENAI_TIMEOUT_SECONDS",
	"smtp.host":                    "SMTP_HOST",
	"smtp.port":                    "SMTP_PORT",
	"smtp.ssl_port":                "SMTP_SSL_PORT",
	"smtp.username":                "SMTP_USERNAME",
	"smtp.password":                "SMTP_PASSWORD",
	"smtp.from_email":              "FROM_EMAIL",
	"smtp.self_email":              "SELF_EMAIL",
	"http.cache_dir":               "CACHE_DIR",
	"http.cache_ttl_seconds":       "CACHE_TTL_SECONDS",
	"http.request_timeout_seconds": "REQUEST_TIMEOUT_SECONDS",
	"http.max_retries":             "HTTP_MAX_RETRIES",
	"http.max_requests_per_host":   "MAX_REQUESTS_PER_HOST",
	"http.user_agent":              "HTTP_USER_AGENT",
	"run.max_workers":              "MAX_WORKERS",
	"log.level":                    "LOG_LEVEL",
}

// Load builds the configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout_seconds", 45)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.ssl_port", 465)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_email", "")
	v.SetDefault("smtp.self_email", "")
	v.SetDefault("http.cache_dir", ".cache/http")
	v.SetDefault("http.cache_ttl_seconds", 1800)
	v.SetDefault("http.request_timeout_seconds", 20)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.max_requests_per_host", 5)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; daily-movers/1.0)")
	v.SetDefault("run.max_workers", 5)
	v.SetDefault("log.level", "INFO")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(v.GetString("openai.api_key")),
			BaseURL: strings.TrimRight(v.GetString("openai.base_url"), "/"),
			Model:   v.GetString("openai.model"),
			Timeout: time.Duration(v.GetInt("openai.timeout_seconds")) * time.Second,
		},
		SMTP: SMTPConfig{
			Host:      v.GetString("smtp.host"),
			Port:      v.GetInt("smtp.port"),
			SSLPort:   v.GetInt("smtp.ssl_port"),
			Username:  v.GetString("smtp.username"),
			Password:  v.GetString("smtp.password"),
			FromEmail: v.GetString("smtp.from_email"),
			SelfEmail: v.GetString("smtp.self_email"),
		},
		HTTP: HTTPConfig{
			CacheDir:           v.GetString("http.cache_dir"),
			CacheTTL:           time.Duration(v.GetInt("http.cache_ttl_seconds")) * time.Second,
			RequestTimeout:     time.Duration(v.GetInt("http.request_timeout_seconds")) * time.Second,
			MaxRetries:         v.GetInt("http.max_retries"),
			MaxRequestsPerHost: v.GetInt("http.max_requests_per_host"),
			UserAgent:          v.GetString("http.user_agent"),
		},
		Run: RunConfig{
			MaxWorkers: v.GetInt("run.max_workers"),
		},
		Log: LogConfig{
			Level: strings.ToUpper(v.GetString("log.level")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Run.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1")
	}
	if c.HTTP.MaxRequestsPerHost < 1 {
		return fmt.Errorf("max_requests_per_host must be at least 1")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("openai timeout must be positive")
	}
	if c.HTTP.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be non-negative")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
	}
	if c.SMTP.SSLPort <= 0 || c.SMTP.SSLPort > 65535 {
		return fmt.Errorf("invalid SMTP SSL port: %d", c.SMTP.SSLPort)
	}
	switch c.Log.Level {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

// OpenAIEnabled reports whether an OpenAI API key is configured.
func (c *Config) OpenAIEnabled() bool {
	return c.OpenAI.APIKey != ""
}

// SMTPReady reports whether every field needed to send email is set.
func (c *Config) SMTPReady() bool {
	return c.SMTP.Host != "" &&
		c.SMTP.Username != "" &&
		c.SMTP.Password != "" &&
		c.SMTP.FromEmail != "" &&
		c.SMTP.SelfEmail != ""
}
