package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ApifyAPIKey     string
	ApifyActorID    string
	ApifyTimeoutSec int

	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicMaxTok int
	AnthropicTemp   float64
	LLMTimeoutSec   int

	ServerPort   string
	OutputDir    string
	PromptPath   string
	DateStrategy string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PostgresEnabled  bool
}

// Load reads the .env file and environment, applies defaults and validates
// that both backend credentials are present. Missing credentials fail here,
// before any user action is possible.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		ApifyAPIKey:     os.Getenv("APIFY_API_KEY"),
		ApifyActorID:    getEnv("APIFY_ACTOR_ID", "compass~Google-Maps-Reviews-Scraper"),
		ApifyTimeoutSec: getEnvInt("APIFY_TIMEOUT_SECS", 300),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-opus-20240229"),
		AnthropicMaxTok: getEnvInt("ANTHROPIC_MAX_TOKENS", 3000),
		AnthropicTemp:   getEnvFloat("ANTHROPIC_TEMPERATURE", 0.7),
		LLMTimeoutSec:   getEnvInt("LLM_TIMEOUT_SECS", 120),

		ServerPort:   getEnv("SERVER_PORT", "8080"),
		OutputDir:    getEnv("OUTPUT_DIR", "./output"),
		PromptPath:   getEnv("PROMPT_PATH", "./prompt.yaml"),
		DateStrategy: getEnv("DATE_STRATEGY", "synthetic"),

		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "reviews"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "reviews_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
	cfg.PostgresEnabled = cfg.PostgresHost != ""

	if cfg.ApifyAPIKey == "" {
		return nil, fmt.Errorf("config: APIFY_API_KEY is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("config: ANTHROPIC_API_KEY is required")
	}
	if cfg.DateStrategy != "synthetic" && cfg.DateStrategy != "published" {
		return nil, fmt.Errorf("config: DATE_STRATEGY must be \"synthetic\" or \"published\", got %q", cfg.DateStrategy)
	}
	if cfg.AnthropicMaxTok <= 0 {
		return nil, fmt.Errorf("config: ANTHROPIC_MAX_TOKENS must be positive")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
