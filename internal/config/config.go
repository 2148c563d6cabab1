package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Search providers for the web-search tier.
const (
	SearchProviderHTML   = "html"
	SearchProviderGemini = "gemini"
	SearchProviderGroq   = "groq"
	SearchProviderNone   = "none"
)

const (
	DefaultUSDABaseURL     = "https://api.nal.usda.gov/fdc/v1"
	DefaultSearchBaseURL   = "https://html.duckduckgo.com/html/"
	DefaultGroqBaseURL     = "https://api.groq.com/openai/v1"
	DefaultGeminiModel     = "gemini-1.5-flash"
	DefaultGroqModel       = "llama-3.3-70b-versatile"
	DefaultDatabasePath    = "data/calorie.db"
	DefaultMatchThreshold  = 70
	DefaultCacheTTL        = 15 * time.Minute
	DefaultExternalTimeout = 5 * time.Second
	DefaultUSDARate        = 30
)

// Config holds the configuration for the application.
type Config struct {
	USDAAPIKey        string
	USDABaseURL       string
	USDARatePerMinute int

	SearchProvider string
	SearchBaseURL  string
	GeminiAPIKey   string
	GeminiModel    string
	GroqAPIKey     string
	GroqBaseURL    string
	GroqModel      string

	// FoodTablePath replaces the built-in curated table when set.
	FoodTablePath   string
	MatchThreshold  float64
	CacheTTL        time.Duration
	ExternalTimeout time.Duration

	DatabasePath string
	LogLevel     string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	Port                   string
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := &Config{
		USDAAPIKey:       os.Getenv("USDA_API_KEY"),
		USDABaseURL:      getEnv("USDA_BASE_URL", DefaultUSDABaseURL),
		SearchProvider:   strings.ToLower(getEnv("SEARCH_PROVIDER", SearchProviderHTML)),
		SearchBaseURL:    getEnv("SEARCH_BASE_URL", DefaultSearchBaseURL),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", DefaultGeminiModel),
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:      getEnv("GROQ_BASE_URL", DefaultGroqBaseURL),
		GroqModel:        getEnv("GROQ_MODEL", DefaultGroqModel),
		FoodTablePath:    os.Getenv("FOOD_TABLE_PATH"),
		DatabasePath:     getEnv("DATABASE_PATH", DefaultDatabasePath),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Port:             getEnv("PORT", "8080"),
	}

	switch cfg.SearchProvider {
	case SearchProviderHTML, SearchProviderNone:
	case SearchProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
	case SearchProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
	default:
		return nil, fmt.Errorf("SEARCH_PROVIDER must be one of html, gemini, groq, none; got %q", cfg.SearchProvider)
	}

	var err error
	if cfg.USDARatePerMinute, err = getInt("USDA_RATE_PER_MINUTE", DefaultUSDARate); err != nil {
		return nil, err
	}

	threshold, err := getInt("MATCH_THRESHOLD", DefaultMatchThreshold)
	if err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold > 100 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be between 1 and 100, got %d", threshold)
	}
	cfg.MatchThreshold = float64(threshold)

	if cfg.CacheTTL, err = getDuration("CACHE_TTL", DefaultCacheTTL); err != nil {
		return nil, err
	}
	if cfg.ExternalTimeout, err = getDuration("EXTERNAL_TIMEOUT", DefaultExternalTimeout); err != nil {
		return nil, err
	}

	// Telegram Config (Optional for CLI, required for Bot)
	cfg.TelegramWebhookURL = os.Getenv("TELEGRAM_WEBHOOK_URL")
	for _, part := range strings.Split(os.Getenv("TELEGRAM_ALLOW_USER_ID"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_ALLOW_USER_ID contains an invalid id %q", part)
		}
		cfg.TelegramAllowedUserIDs = append(cfg.TelegramAllowedUserIDs, id)
	}

	return cfg, nil
}

// VerifiedLookupEnabled reports whether the USDA tier can run.
func (c *Config) VerifiedLookupEnabled() bool {
	return c.USDAAPIKey != ""
}

// ValidateTelegram checks the settings the bot binary needs.
func (c *Config) ValidateTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 15m, got %q", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}
