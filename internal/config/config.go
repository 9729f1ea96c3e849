// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	DedupRedis  = "redis"
	DedupFile   = "file"
	DedupMemory = "memory"

	PosterX        = "x"
	PosterTelegram = "telegram"
	PosterLog      = "log"
)

type Config struct {
	LogLevel string

	// Cycle
	CycleInterval  time.Duration `validate:"gt=0"`
	PostDelay      time.Duration `validate:"gte=0"`
	ComposeRetries int           `validate:"gte=1"`

	// Fetcher
	FetchTimeout    time.Duration `validate:"gt=0"`
	FetchMaxRetries int           `validate:"gte=1"`
	DNSCacheTTL     time.Duration `validate:"gt=0,lte=60s"`
	VerifyTLS       bool

	// Dedup store
	DedupBackend  string `validate:"oneof=redis file memory"`
	RedisURL      string `validate:"required_if=DedupBackend redis"`
	DedupFilePath string `validate:"required_if=DedupBackend file"`

	// Persistence (optional)
	DatabaseURL string

	// Gemini settings
	GeminiAPIKey     string `validate:"required"`
	GeminiModel      string `validate:"required"`
	ClassifyAttempts int    `validate:"gte=1"`

	// Posting
	Poster             string `validate:"oneof=x telegram log"`
	XAPIKey            string `validate:"required_if=Poster x"`
	XAPISecret         string `validate:"required_if=Poster x"`
	XAccessToken       string `validate:"required_if=Poster x"`
	XAccessTokenSecret string `validate:"required_if=Poster x"`
	TelegramToken      string `validate:"required_if=Poster telegram"`
	TelegramChatID     string `validate:"required_if=Poster telegram"`
	MonthlyPostLimit   int    `validate:"gte=0"`
	DailyPostLimit     int    `validate:"gte=0"`

	// Admin server
	EnableHTTP bool
	HTTPAddr   string `validate:"required_if=EnableHTTP true"`

	// Static data overrides; empty means the embedded defaults.
	SourcesPath  string
	KeywordsPath string
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		CycleInterval:  getEnvDurationOrDefault("CYCLE_INTERVAL", 5*time.Minute),
		PostDelay:      getEnvDurationOrDefault("POST_DELAY", 5*time.Second),
		ComposeRetries: getEnvIntOrDefault("COMPOSE_RETRIES", 5),

		FetchTimeout:    getEnvDurationOrDefault("FETCH_TIMEOUT", 20*time.Second),
		FetchMaxRetries: getEnvIntOrDefault("FETCH_MAX_RETRIES", 3),
		DNSCacheTTL:     getEnvDurationOrDefault("DNS_CACHE_TTL", 60*time.Second),
		VerifyTLS:       getEnvBoolOrDefault("FETCH_VERIFY_TLS", true),

		DedupBackend:  strings.ToLower(getEnvOrDefault("DEDUP_BACKEND", DedupRedis)),
		RedisURL:      os.Getenv("REDIS_URL"),
		DedupFilePath: getEnvOrDefault("DEDUP_FILE_PATH", "seen_items.json"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		ClassifyAttempts: getEnvIntOrDefault("CLASSIFY_ATTEMPTS", 3),

		Poster:             strings.ToLower(getEnvOrDefault("POSTER", PosterLog)),
		XAPIKey:            os.Getenv("X_API_KEY"),
		XAPISecret:         os.Getenv("X_API_SECRET"),
		XAccessToken:       os.Getenv("X_ACCESS_TOKEN"),
		XAccessTokenSecret: os.Getenv("X_ACCESS_TOKEN_SECRET"),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
		MonthlyPostLimit:   getEnvIntOrDefault("MONTHLY_POST_LIMIT", 495),
		DailyPostLimit:     getEnvIntOrDefault("DAILY_POST_LIMIT", 17),

		EnableHTTP: getEnvBoolOrDefault("ENABLE_HTTP", true),
		HTTPAddr:   getEnvOrDefault("HTTP_ADDR", ":8080"),

		SourcesPath:  os.Getenv("SOURCES_PATH"),
		KeywordsPath: os.Getenv("KEYWORDS_PATH"),
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

var validate = validator.New()

// Validate reports the first invalid field using its environment variable name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", name)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", name, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s=%s)", name, fe.Tag(), fe.Param())
	}
}

var envNames = map[string]string{
	"CycleInterval":      "CYCLE_INTERVAL",
	"PostDelay":          "POST_DELAY",
	"ComposeRetries":     "COMPOSE_RETRIES",
	"FetchTimeout":       "FETCH_TIMEOUT",
	"FetchMaxRetries":    "FETCH_MAX_RETRIES",
	"DNSCacheTTL":        "DNS_CACHE_TTL",
	"DedupBackend":       "DEDUP_BACKEND",
	"RedisURL":           "REDIS_URL",
	"DedupFilePath":      "DEDUP_FILE_PATH",
	"GeminiAPIKey":       "GEMINI_API_KEY",
	"GeminiModel":        "GEMINI_MODEL",
	"ClassifyAttempts":   "CLASSIFY_ATTEMPTS",
	"Poster":             "POSTER",
	"XAPIKey":            "X_API_KEY",
	"XAPISecret":         "X_API_SECRET",
	"XAccessToken":       "X_ACCESS_TOKEN",
	"XAccessTokenSecret": "X_ACCESS_TOKEN_SECRET",
	"TelegramToken":      "TELEGRAM_TOKEN",
	"TelegramChatID":     "TELEGRAM_CHAT_ID",
	"MonthlyPostLimit":   "MONTHLY_POST_LIMIT",
	"DailyPostLimit":     "DAILY_POST_LIMIT",
	"HTTPAddr":           "HTTP_ADDR",
}
