package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// Sora2-compatible video generation API.
	AIAPIBaseURL string
	AIAPIKey     string

	// Video status poller knobs.
	VideoPollInterval    time.Duration
	VideoMaxPollDuration time.Duration

	// Optional YAML file overriding the built-in token prices.
	TokenPricingPath string

	CORSOrigin       string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AIAPIBaseURL:         os.Getenv("AI_API_BASE_URL"),
		AIAPIKey:             os.Getenv("AI_API_KEY"),
		VideoPollInterval:    time.Millisecond * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL", 5000)),
		VideoMaxPollDuration: time.Millisecond * time.Duration(getEnvInt("VIDEO_MAX_POLL_DURATION", 3600000)),
		TokenPricingPath:     os.Getenv("TOKEN_PRICING_PATH"),
		CORSOrigin:           getEnv("CORS_ORIGIN", "http://localhost:5173"),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.VideoPollInterval <= 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL must be positive")
	}

	if cfg.VideoMaxPollDuration <= 0 {
		return nil, fmt.Errorf("VIDEO_MAX_POLL_DURATION must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
