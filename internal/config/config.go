// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ytpm/backend/internal/queue"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port              string
	JWTSecret         string
	UserTokenDuration time.Duration

	YouTubeAPIKey     string
	YouTubeAPIURL     string
	YouTubeRegionCode string

	RoomIdleTimeout   time.Duration
	RoomSweepInterval time.Duration
	AutoPlayDefault   bool
	AutoPlayCooldown  int
	DequeuePolicy     queue.DequeuePolicy
	LongPollTimeout   time.Duration

	VideoCacheSize int
	VideoCacheTTL  time.Duration
	RedisURL       string

	RateLimitPerMinute int
	OperatorKey        string
	CORSAllowedOrigins []string
	TrustedProxies     []string
	SentryDSN          string
	SentryDSNFrontend  string
	SentryEnvironment  string
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		JWTSecret:         getEnv("JWT_SECRET", "change-me-in-production"), // #nosec G101 -- intentional dev default
		UserTokenDuration: getDurationEnv("USER_TOKEN_DURATION", 24*time.Hour),

		YouTubeAPIKey:     getEnv("YOUTUBE_API_KEY", ""),
		YouTubeAPIURL:     getEnv("YOUTUBE_API_URL", "https://www.googleapis.com/youtube/v3"),
		YouTubeRegionCode: getEnv("YOUTUBE_REGION_CODE", "NZ"),

		RoomIdleTimeout:   getDurationEnv("ROOM_IDLE_TIMEOUT", 6*time.Hour),
		RoomSweepInterval: getDurationEnv("ROOM_SWEEP_INTERVAL", 10*time.Minute),
		AutoPlayDefault:   getBoolEnv("AUTOPLAY_DEFAULT", true),
		AutoPlayCooldown:  getIntEnv("AUTOPLAY_COOLDOWN", 10),
		DequeuePolicy:     getDequeuePolicyEnv("DEQUEUE_POLICY", queue.DequeueAnyone),
		LongPollTimeout:   getDurationEnv("LONG_POLL_TIMEOUT", 0),

		VideoCacheSize: getIntEnv("VIDEO_CACHE_SIZE", 5000),
		VideoCacheTTL:  getDurationEnv("VIDEO_CACHE_TTL", 24*time.Hour),
		RedisURL:       getEnv("REDIS_URL", ""),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 30),
		OperatorKey:        getEnv("OPERATOR_KEY", ""),
		CORSAllowedOrigins: getStringSliceEnvDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200", "http://localhost:3000"}),
		TrustedProxies:     getStringSliceEnv("TRUSTED_PROXIES"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		SentryDSNFrontend:  getEnv("SENTRY_DSN_FRONTEND", ""),
		SentryEnvironment:  getEnv("SENTRY_ENVIRONMENT", "production"),
	}
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getStringSliceEnvDefault(key string, defaultValue []string) []string {
	if v := getStringSliceEnv(key); len(v) > 0 {
		return v
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDequeuePolicyEnv(key string, defaultValue queue.DequeuePolicy) queue.DequeuePolicy {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	policy, err := queue.ParseDequeuePolicy(value)
	if err != nil {
		slog.Warn("ignoring invalid dequeue policy", slog.String("value", value))
		return defaultValue
	}
	return policy
}
