package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Telegram Bot
	TelegramToken         string
	TelegramWebhookSecret string
	WebhookBaseURL        string

	// OpenAI
	OpenAIKey string

	// Database
	DatabaseURL string

	// Web Server
	WebBind        string
	AllowedOrigins string

	// Dashboard
	JWTSecret         string
	DashboardPassword string

	// Timeouts
	ExternalTimeout time.Duration
	SessionTTL      time.Duration
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		WebhookBaseURL:        os.Getenv("WEBHOOK_BASE_URL"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		WebBind:               getEnvDefault("WEB_BIND", "0.0.0.0:8080"),
		AllowedOrigins:        getEnvDefault("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:             getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		DashboardPassword:     os.Getenv("DASHBOARD_PASSWORD"),
		ExternalTimeout:       time.Duration(getEnvInt("EXTERNAL_TIMEOUT_SECONDS", 45)) * time.Second,
		SessionTTL:            time.Duration(getEnvInt("SESSION_TTL_HOURS", 24)) * time.Hour,
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.TelegramWebhookSecret == "" {
		return nil, fmt.Errorf("TELEGRAM_WEBHOOK_SECRET is required")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
