package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string
	AutoMigrate bool

	CacheMaxEntries   int
	CacheWarmSchedule string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	BreakerFailureThreshold int
	BreakerTimeout          time.Duration

	RateLimitPerMinute int
	CORSAllowedOrigins []string
	OTLPEndpoint       string
	TraceSampleRatio   float64
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path
func LoadFile(dotenv string) (*Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxEntries, err := strconv.Atoi(getEnv("CACHE_MAX_ENTRIES", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_MAX_ENTRIES: %w", err)
	}

	maxAttempts, err := strconv.Atoi(getEnv("RETRY_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %d is below 1", maxAttempts)
	}

	baseDelayMS, err := strconv.Atoi(getEnv("RETRY_BASE_DELAY_MS", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BASE_DELAY_MS: %w", err)
	}

	failureThreshold, err := strconv.Atoi(getEnv("BREAKER_FAILURE_THRESHOLD", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_FAILURE_THRESHOLD: %w", err)
	}

	breakerTimeout, err := strconv.Atoi(getEnv("BREAKER_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_TIMEOUT_SECONDS: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	autoMigrate, err := parseBoolEnv("AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLE_RATIO", "1"), 64)
	if err != nil || sampleRatio < 0 || sampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLE_RATIO: %q", os.Getenv("OTEL_TRACES_SAMPLE_RATIO"))
	}

	return &Config{
		Environment:             getEnv("ENVIRONMENT", "development"),
		ServerPort:              port,
		DatabaseURL:             databaseURL,
		RedisURL:                os.Getenv("REDIS_URL"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "json"),
		AutoMigrate:             autoMigrate,
		CacheMaxEntries:         maxEntries,
		CacheWarmSchedule:       getEnvAllowEmpty("CACHE_WARM_SCHEDULE", "@every 5m"),
		RetryMaxAttempts:        maxAttempts,
		RetryBaseDelay:          time.Duration(baseDelayMS) * time.Millisecond,
		BreakerFailureThreshold: failureThreshold,
		BreakerTimeout:          time.Duration(breakerTimeout) * time.Second,
		RateLimitPerMinute:      rateLimit,
		CORSAllowedOrigins:      parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:        sampleRatio,
	}, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes an unset variable from one set to ""
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	switch strings.ToLower(v) {
	case "":
		return defaultValue, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s: %q", key, v)
	}
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
