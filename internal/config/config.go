// Package config loads and validates all environment variables at startup.
// Every other package receives typed values; nothing reads os.Getenv directly.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-parsed application configuration.
type Config struct {
	// ── Server ────────────────────────────────────────────────────────────────
	Port        string // default "8080"
	Env         string // "development" | "staging" | "production"
	LogLevel    string // debug | info | warn | error; empty means env default
	CORSOrigins []string

	// ── OpenAI ────────────────────────────────────────────────────────────────
	// Primary text-generation provider. A missing key does not stop startup;
	// runs fail with the API-key alert instead.
	OpenAIAPIKey  string
	OpenAIModel   string // default "gpt-4o-mini"
	OpenAIBaseURL string // default "https://api.openai.com/v1"

	// ── Anthropic ─────────────────────────────────────────────────────────────
	// Optional. When set, Anthropic is used as the fallback if the OpenAI call
	// fails.
	AnthropicAPIKey  string
	AnthropicModel   string // default "claude-3-5-haiku-latest"
	AnthropicBaseURL string // default "https://api.anthropic.com"

	// ModelTimeout bounds each model call. Default 60s.
	ModelTimeout time.Duration

	// ── Kafka ─────────────────────────────────────────────────────────────────
	// Empty KafkaBrokers means completed runs are only logged.
	KafkaBrokers []string
	KafkaTopic   string // default "climate-risk-runs"

	// ── Worker ────────────────────────────────────────────────────────────────
	EventWorkers    int // default 2
	EventQueueSize  int // default 64
	EventMaxRetries int // default 3
}

// Load reads all environment variables and returns a validated Config.
// It automatically loads a .env file from the working directory when present,
// so plain `go run ./cmd/api` works in development without any wrapper.
// Real environment variables always take precedence over .env values.
func Load() (*Config, error) {
	loadDotEnv(".env")

	c := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		CORSOrigins:      getEnvAsList("CORS_ORIGINS", []string{"*"}),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		ModelTimeout:     getEnvAsDuration("MODEL_TIMEOUT", 60*time.Second),
		KafkaBrokers:     getEnvAsList("KAFKA_BROKERS", nil),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "climate-risk-runs"),
		EventWorkers:     getEnvAsInt("EVENT_WORKERS", 2),
		EventQueueSize:   getEnvAsInt("EVENT_QUEUE_SIZE", 64),
		EventMaxRetries:  getEnvAsInt("EVENT_MAX_RETRIES", 3),
	}

	return c, c.validate()
}

// KafkaEnabled reports whether completed runs should be written to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// ModelProviders is the number of providers a single model call may try in
// sequence: two when the Anthropic fallback sits behind OpenAI, else one.
func (c *Config) ModelProviders() int {
	if c.OpenAIAPIKey != "" && c.AnthropicAPIKey != "" {
		return 2
	}
	return 1
}

// RunBudget bounds one pipeline run: two sequential model calls, each of
// which may walk every provider, plus headroom for parsing and publishing.
func (c *Config) RunBudget() time.Duration {
	return time.Duration(2*c.ModelProviders())*c.ModelTimeout + 10*time.Second
}

func (c *Config) validate() error {
	var errs []error

	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT: %q", c.Port))
	}

	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		errs = append(errs, fmt.Errorf("invalid ENV: %q", c.Env))
	}

	if c.ModelTimeout <= 0 {
		errs = append(errs, fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", c.ModelTimeout))
	}
	if c.EventWorkers <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_WORKERS must be positive, got %d", c.EventWorkers))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize))
	}
	if c.EventMaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_MAX_RETRIES must be positive, got %d", c.EventMaxRetries))
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC must be set when KAFKA_BROKERS is set"))
	}

	return errors.Join(errs...)
}

// ─── DOT-ENV LOADER ──────────────────────────────────────────────────────────

// loadDotEnv reads key=value pairs from path and sets them in the environment,
// but only for keys that are not already set. Real env vars always win over
// the file. Missing file, blank lines, and #-comments are silently ignored.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return // file absent, fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		// Strip optional surrounding quotes: KEY="value" or KEY='value'
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns defaultValue when the variable is unset. A value that
// does not parse is returned as -1 so validate reports it.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return -1
	}
	return value
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// A plain integer is seconds.
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value) * time.Second
	}
	// Fall back to Go duration syntax: "30s", "5m", "1h", etc.
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	return -1
}
