// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration.
type Config struct {
	Port            string   `validate:"required,numeric"`
	FrontendURL     string   `validate:"omitempty,url"`
	CORSOrigins     []string `validate:"min=1,dive,required"`
	LogLevel        string   `validate:"oneof=debug info warn error"`
	ProfilePath     string
	MaxBodyBytes    int64 `validate:"gt=0"`
	Metrics         bool
	LLM             LLMConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// LLMConfig configures the upstream completion provider.
type LLMConfig struct {
	BaseURL     string `validate:"required,url"`
	APIKey      string
	Model       string        `validate:"required"`
	MaxTokens   int           `validate:"gt=0"`
	Temperature float64       `validate:"gte=0,lte=2"`
	Timeout     time.Duration `validate:"gt=0"`
}

// RateLimitConfig configures the chat rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int           `validate:"gt=0"`
	Window            time.Duration `validate:"gt=0"`
	BurstInterval     time.Duration `validate:"gte=0"`
	SweepInterval     time.Duration `validate:"gt=0"`
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Path      string
	QueueSize int `validate:"gt=0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:     strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ProfilePath:  getEnv("PROFILE_PATH", "./data/profile.yaml"),
		MaxBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		Metrics:      getEnvBool("METRICS_ENABLED", true),
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 15),
			Window:            getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			BurstInterval:     getEnvDuration("RATE_LIMIT_BURST_INTERVAL", time.Second),
			SweepInterval:     getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Path:      getEnv("CONVERSATION_LOG_PATH", "./data/logs/conversations.ndjson"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if c.LLM.APIKey == "" && !isLocalURL(c.LLM.BaseURL) {
		return fmt.Errorf("LLM_API_KEY is required for remote LLM_BASE_URL %s", c.LLM.BaseURL)
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Path == "" {
		return fmt.Errorf("CONVERSATION_LOG_PATH cannot be empty when logging is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isLocalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1", "host.docker.internal":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
