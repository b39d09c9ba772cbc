package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Data         DataConfig
	Server       ServerConfig
	Logging      LoggingConfig
	OpenAI       OpenAIConfig
	Engine       EngineConfig
	Cache        CacheConfig
	Conversation ConversationConfig
}

// DataConfig holds the tabular data service connection
type DataConfig struct {
	Driver             string // postgres or sqlite
	DSN                string // full connection string (preferred)
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// OpenAIConfig holds the planner/classifier LLM configuration
type OpenAIConfig struct {
	APIKey          string
	APIBase         string
	PlannerModel    string
	ClassifierModel string
	Temperature     float64
	MaxTokens       int
	Timeout         int
	Enabled         bool
}

// EngineConfig holds execution limits for external fetches
type EngineConfig struct {
	FetchTimeout time.Duration
	FetchRetries int
	FetchRate    float64 // fetches per second, 0 disables throttling
	FetchBurst   int
	NearbyLimit  int
}

// CacheConfig selects the session/average store backend
type CacheConfig struct {
	Backend    string // memory or badger
	BadgerPath string
	ContextTTL time.Duration
	AverageTTL time.Duration
}

// ConversationConfig tunes the conversation flow
type ConversationConfig struct {
	MinConfidence float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Data: DataConfig{
			Driver:             getEnv("DATA_DRIVER", "postgres"),
			DSN:                getEnv("DATABASE_URL", getEnv("DATA_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "suburb_insights"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			APIBase:         getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			PlannerModel:    getEnv("OPENAI_PLANNER_MODEL", "gpt-4o-mini"),
			ClassifierModel: getEnv("OPENAI_CLASSIFIER_MODEL", "gpt-4o-mini"),
			Temperature:     getEnvAsFloat("OPENAI_TEMPERATURE", 0.1),
			MaxTokens:       getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
			Timeout:         getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:         getEnv("OPENAI_API_KEY", "") != "",
		},
		Engine: EngineConfig{
			FetchTimeout: getEnvAsDuration("FETCH_TIMEOUT", 5*time.Second),
			FetchRetries: getEnvAsInt("FETCH_RETRIES", 1),
			FetchRate:    getEnvAsFloat("FETCH_RATE_PER_SEC", 50),
			FetchBurst:   getEnvAsInt("FETCH_BURST", 10),
			NearbyLimit:  getEnvAsInt("NEARBY_LIMIT", 5),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			BadgerPath: getEnv("BADGER_PATH", "./data/badger"),
			ContextTTL: getEnvAsDuration("CONTEXT_TTL", 2*time.Hour),
			AverageTTL: getEnvAsDuration("STATE_AVERAGE_TTL", 24*time.Hour),
		},
		Conversation: ConversationConfig{
			MinConfidence: getEnvAsFloat("CLASSIFIER_MIN_CONFIDENCE", 0.5),
		},
	}

	if cfg.Data.Driver != "postgres" && cfg.Data.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATA_DRIVER %q (want postgres or sqlite)", cfg.Data.Driver)
	}
	if cfg.Cache.Backend != "memory" && cfg.Cache.Backend != "badger" {
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q (want memory or badger)", cfg.Cache.Backend)
	}

	return cfg, nil
}

// GetDataDSN returns the data service connection string
func (c *Config) GetDataDSN() string {
	if c.Data.DSN != "" {
		return c.Data.DSN
	}
	if c.Data.Driver == "sqlite" {
		return "file:suburb_insights.db?cache=shared"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Data.Host,
		c.Data.Port,
		c.Data.User,
		c.Data.Password,
		c.Data.Database,
		c.Data.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
