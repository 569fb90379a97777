package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseSSLMode  string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Secret used to encrypt stored provider API keys
	EncryptionKey string

	LLM       LLMConfig
	Retry     RetryConfig
	Embedding EmbeddingConfig
	Analysis  AnalysisConfig
	API       APIConfig
	Logging   LoggingConfig

	// Set by LoadFromEnv when no .env file was found
	EnvFileMissing bool
}

// LLMConfig holds language model provider configuration.
// The API keys here are server defaults used when a user has not stored their own.
type LLMConfig struct {
	DefaultProvider string // "openai" or "anthropic"

	OpenAIEndpoint       string
	OpenAIAPIKey         string
	OpenAIChatModel      string
	OpenAIEmbeddingModel string

	AnthropicEndpoint string
	AnthropicAPIKey   string
	AnthropicModel    string

	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

// RetryConfig controls provider retry/backoff
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// EmbeddingConfig controls indexing and retrieval
type EmbeddingConfig struct {
	BatchSize       int
	BatchPause      time.Duration
	SearchThreshold float64
	SearchLimit     int
	QueryCacheTTL   time.Duration
}

// AnalysisConfig holds pattern engine thresholds
type AnalysisConfig struct {
	MinTimeSamples        int
	MinSetupTickerSamples int
	MinSetupSamples       int
	MinRiskSamples        int
	MinSuccessRate        float64
	MinRiskScore          float64
	RecommendationWindow  time.Duration
	ScheduleInterval      time.Duration
	BackfillInterval      time.Duration
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int
	JWTSecret      string
	AllowedOrigins []string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string
	JSONFormat bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	missing := godotenv.Load() != nil

	return &Config{
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "trading_journal"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "journal"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "journal"),
		DatabaseSSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),

		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		EncryptionKey: getEnvOrDefault("ENCRYPTION_KEY", ""),

		LLM: LLMConfig{
			DefaultProvider:      getEnvOrDefault("LLM_DEFAULT_PROVIDER", "openai"),
			OpenAIEndpoint:       getEnvOrDefault("OPENAI_ENDPOINT", "https://api.openai.com/v1"),
			OpenAIAPIKey:         getEnvOrDefault("OPENAI_API_KEY", ""),
			OpenAIChatModel:      getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			OpenAIEmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			AnthropicEndpoint:    getEnvOrDefault("ANTHROPIC_ENDPOINT", "https://api.anthropic.com/v1"),
			AnthropicAPIKey:      getEnvOrDefault("ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
			MaxTokens:            getEnvInt("LLM_MAX_TOKENS", 1000),
			Temperature:          getEnvFloat("LLM_TEMPERATURE", 0.7),
			RequestTimeout:       getEnvDuration("LLM_REQUEST_TIMEOUT", 60*time.Second),
		},

		Retry: RetryConfig{
			MaxAttempts: getEnvInt("LLM_RETRY_ATTEMPTS", 3),
			BaseDelay:   getEnvDuration("LLM_RETRY_BASE_DELAY", time.Second),
		},

		Embedding: EmbeddingConfig{
			BatchSize:       getEnvInt("EMBEDDING_BATCH_SIZE", 5),
			BatchPause:      getEnvDuration("EMBEDDING_BATCH_PAUSE", time.Second),
			SearchThreshold: getEnvFloat("EMBEDDING_SEARCH_THRESHOLD", 0.5),
			SearchLimit:     getEnvInt("EMBEDDING_SEARCH_LIMIT", 5),
			QueryCacheTTL:   getEnvDuration("EMBEDDING_QUERY_CACHE_TTL", 24*time.Hour),
		},

		Analysis: AnalysisConfig{
			MinTimeSamples:        getEnvInt("ANALYSIS_MIN_TIME_SAMPLES", 5),
			MinSetupTickerSamples: getEnvInt("ANALYSIS_MIN_TICKER_SAMPLES", 10),
			MinSetupSamples:       getEnvInt("ANALYSIS_MIN_SETUP_SAMPLES", 5),
			MinRiskSamples:        getEnvInt("ANALYSIS_MIN_RISK_SAMPLES", 2),
			MinSuccessRate:        getEnvFloat("ANALYSIS_MIN_SUCCESS_RATE", 0.6),
			MinRiskScore:          getEnvFloat("ANALYSIS_MIN_RISK_SCORE", 30),
			RecommendationWindow:  getEnvDuration("ANALYSIS_RECOMMENDATION_WINDOW", 24*time.Hour),
			ScheduleInterval:      getEnvDuration("ANALYSIS_SCHEDULE_INTERVAL", 6*time.Hour),
			BackfillInterval:      getEnvDuration("EMBEDDING_BACKFILL_INTERVAL", time.Hour),
		},

		API: APIConfig{
			Port:           getEnvInt("API_PORT", 8080),
			JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
			AllowedOrigins: getEnvList("API_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},

		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			JSONFormat: getEnvOrDefault("LOG_JSON", "true") == "true",
		},

		EnvFileMissing: missing,
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvDuration parses a Go duration string ("1s", "6h")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// getEnvList splits a comma separated variable
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
