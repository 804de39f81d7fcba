package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the adapter.
// SSOT: every environment variable is read here and nowhere else.
type Config struct {
	Env string // development, staging, production

	// Broker API
	TDA TDAConfig

	// Redis (optional, shared rate quota across processes)
	Redis RedisConfig

	// Postgres (optional, download sink)
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string
}

// TDAConfig holds TD Ameritrade API configuration.
type TDAConfig struct {
	ConsumerKey  string
	CallbackURL  string
	RefreshToken string
	AccountID    string
	BaseURL      string
	PaperTrading bool
	TokenDir     string // directory for persisted OAuth tokens
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// Load reads configuration from environment variables.
// SSOT: only this function calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		TDA: TDAConfig{
			ConsumerKey:  getEnv("TDA_CONSUMER_KEY", ""),
			CallbackURL:  getEnv("TDA_CALLBACK_URL", "http://localhost"),
			RefreshToken: getEnv("TDA_REFRESH_TOKEN", ""),
			AccountID:    getEnv("TDA_ACCOUNT_ID", ""),
			BaseURL:      getEnv("TDA_BASE_URL", "https://api.tdameritrade.com/v1"),
			PaperTrading: getEnvAsBool("TDA_PAPER_TRADING", false),
			TokenDir:     getEnv("TDA_TOKEN_DIR", defaultTokenDir()),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		DatabaseURL: getEnv("DATABASE_URL", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.TDA.ConsumerKey == "" {
		return fmt.Errorf("TDA_CONSUMER_KEY is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	return nil
}

// defaultTokenDir places saved tokens under the user's home directory.
func defaultTokenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".tda")
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
