package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" || cfg.OpenAI.Timeout != 45*time.Second {
		t.Errorf("openai = %+v", cfg.OpenAI)
	}
	if cfg.SMTP.Port != 587 || cfg.SMTP.SSLPort != 465 {
		t.Errorf("smtp ports = %d/%d", cfg.SMTP.Port, cfg.SMTP.SSLPort)
	}
	if cfg.HTTP.RequestTimeout != 20*time.Second || cfg.HTTP.MaxRetries != 2 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Run.MaxWorkers != 5 {
		t.Errorf("max workers = %d", cfg.Run.MaxWorkers)
	}
	if cfg.Log.Level != "INFO" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
	if cfg.OpenAIEnabled() {
		t.Error("OpenAI should be disabled without a key")
	}
	if cfg.SMTPReady() {
		t.Error("SMTP should not be ready without credentials")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANALYSIS_MODEL", "gpt-4o")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OpenAIEnabled() || cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai = %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("base url not trimmed: %s", cfg.OpenAI.BaseURL)
	}
	if cfg.Run.MaxWorkers != 8 {
		t.Errorf("max workers = %d", cfg.Run.MaxWorkers)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("log level = %s", cfg.Log.Level)
	}
}

func TestSMTPReady(t *testing.T) {
	cfg := &Config{SMTP: SMTPConfig{
		Host:      "smtp.example.com",
		Username:  "user",
		Password:  "pass",
		FromEmail: "from@example.com",
		SelfEmail: "self@example.com",
	}}
	if !cfg.SMTPReady() {
		t.Error("fully configured SMTP reported not ready")
	}
	cfg.SMTP.Password = ""
	if cfg.SMTPReady() {
		t.Error("missing password reported ready")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			OpenAI: OpenAIConfig{Timeout: 45 * time.Second},
			SMTP:   SMTPConfig{Port: 587, SSLPort: 465},
			HTTP: HTTPConfig{
				CacheTTL:           time.Hour,
				RequestTimeout:     20 * time.Second,
				MaxRequestsPerHost: 5,
			},
			Run: RunConfig{MaxWorkers: 5},
			Log: LogConfig{Level: "INFO"},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("baseline config invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Run.MaxWorkers = 0 }},
		{"zero per-host limit", func(c *Config) { c.HTTP.MaxRequestsPerHost = 0 }},
		{"zero request timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }},
		{"zero openai timeout", func(c *Config) { c.OpenAI.Timeout = 0 }},
		{"negative cache ttl", func(c *Config) { c.HTTP.CacheTTL = -time.Second }},
		{"bad smtp port", func(c *Config) { c.SMTP.Port = 70000 }},
		{"bad ssl port", func(c *Config) { c.SMTP.SSLPort = 0 }},
		{"bad log level", func(c *Config) { c.Log.Level = "TRACE" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
