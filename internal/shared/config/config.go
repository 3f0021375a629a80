package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port string
	Env  string

	// Persistence
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// Redis (optional, enables per-user rate limiting)
	RedisURL           string
	RateLimitPerMinute int

	// Agent
	OpenAIAPIKey       string
	AgentModel         string
	AgentMaxToolRounds int
	WebSearchEndpoint  string

	// Request cache
	CacheMaxSize    int
	CacheDefaultTTL time.Duration

	// Billing
	PlansFile    string
	ProfitMargin float64

	// Users allowed on /v1/admin routes
	AdminUserIDs []string

	// Logging
	LogLevel  string
	LogFormat string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DBDriver:           getEnv("DB_DRIVER", DriverPostgres),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "prospect.db"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AgentModel:         getEnv("AGENT_MODEL", "gpt-4o-mini"),
		AgentMaxToolRounds: getEnvInt("AGENT_MAX_TOOL_ROUNDS", 5),
		WebSearchEndpoint:  getEnv("WEB_SEARCH_ENDPOINT", "https://html.duckduckgo.com/html/"),
		CacheMaxSize:       getEnvInt("CACHE_MAX_SIZE", 1000),
		CacheDefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		PlansFile:          getEnv("PLANS_FILE", ""),
		ProfitMargin:       getEnvFloat("PROFIT_MARGIN", 1.5),
		AdminUserIDs:       getEnvList("ADMIN_USER_IDS"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		validation.Field(&c.DatabaseURL, validation.When(c.DBDriver == DriverPostgres, validation.Required.Error("DATABASE_URL is required for the postgres driver"))),
		validation.Field(&c.SQLitePath, validation.When(c.DBDriver == DriverSQLite, validation.Required.Error("SQLITE_PATH is required for the sqlite driver"))),
		validation.Field(&c.RateLimitPerMinute, validation.Min(0)),
		validation.Field(&c.AgentModel, validation.Required),
		validation.Field(&c.AgentMaxToolRounds, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.CacheMaxSize, validation.Required, validation.Min(1)),
		validation.Field(&c.CacheDefaultTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ProfitMargin, validation.Required, validation.Min(1.0)),
		validation.Field(&c.LogLevel, validation.In("trace", "debug", "info", "warn", "warning", "error")),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
