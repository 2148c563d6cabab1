package config

import (
	"testing"
	"time"
)

func TestNewFromEnv(t *testing.T) {
	// Helper function to set environment variables for a test
	setEnv := func(key, value string) {
		t.Helper()
		t.Setenv(key, value)
	}

	// Start every subtest from a clean slate.
	clearEnv := func(t *testing.T) {
		for _, k := range []string{
			"USDA_API_KEY", "USDA_BASE_URL", "USDA_RATE_PER_MINUTE", "SEARCH_PROVIDER",
			"SEARCH_BASE_URL", "GEMINI_API_KEY", "GROQ_API_KEY", "FOOD_TABLE_PATH",
			"MATCH_THRESHOLD", "CACHE_TTL", "EXTERNAL_TIMEOUT", "DATABASE_PATH",
			"TELEGRAM_BOT_TOKEN", "TELEGRAM_WEBHOOK_URL", "TELEGRAM_ALLOW_USER_ID",
		} {
			t.Setenv(k, "")
		}
	}

	t.Run("Defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.SearchProvider != SearchProviderHTML {
			t.Errorf("Expected SearchProvider to be 'html', got '%s'", cfg.SearchProvider)
		}
		if cfg.CacheTTL != 15*time.Minute {
			t.Errorf("Expected CacheTTL to be 15m, got %s", cfg.CacheTTL)
		}
		if cfg.MatchThreshold != 70 {
			t.Errorf("Expected MatchThreshold to be 70, got %f", cfg.MatchThreshold)
		}
		if cfg.ExternalTimeout != 5*time.Second {
			t.Errorf("Expected ExternalTimeout to be 5s, got %s", cfg.ExternalTimeout)
		}
		if cfg.USDABaseURL != DefaultUSDABaseURL {
			t.Errorf("Expected USDABaseURL to be '%s', got '%s'", DefaultUSDABaseURL, cfg.USDABaseURL)
		}
		if cfg.VerifiedLookupEnabled() {
			t.Error("Expected verified lookup to be disabled without USDA_API_KEY")
		}
	})

	t.Run("Success", func(t *testing.T) {
		clearEnv(t)
		setEnv("USDA_API_KEY", "usda_key")
		setEnv("SEARCH_PROVIDER", "Groq")
		setEnv("GROQ_API_KEY", "groq_key")
		setEnv("CACHE_TTL", "30s")
		setEnv("MATCH_THRESHOLD", "75")
		setEnv("TELEGRAM_ALLOW_USER_ID", "123, 456")

		cfg, err := NewFromEnv()
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if cfg.USDAAPIKey != "usda_key" || !cfg.VerifiedLookupEnabled() {
			t.Errorf("Expected USDAAPIKey to be 'usda_key', got '%s'", cfg.USDAAPIKey)
		}
		if cfg.SearchProvider != SearchProviderGroq {
			t.Errorf("Expected SearchProvider to be 'groq', got '%s'", cfg.SearchProvider)
		}
		if cfg.CacheTTL != 30*time.Second {
			t.Errorf("Expected CacheTTL to be 30s, got %s", cfg.CacheTTL)
		}
		if cfg.MatchThreshold != 75 {
			t.Errorf("Expected MatchThreshold to be 75, got %f", cfg.MatchThreshold)
		}
		if len(cfg.TelegramAllowedUserIDs) != 2 || cfg.TelegramAllowedUserIDs[1] != 456 {
			t.Errorf("Expected two allowed user ids, got %v", cfg.TelegramAllowedUserIDs)
		}
	})

	errorCases := []struct {
		name          string
		env           map[string]string
		expectedError string
	}{
		{
			name:          "MissingGeminiAPIKey",
			env:           map[string]string{"SEARCH_PROVIDER": "gemini"},
			expectedError: "GEMINI_API_KEY environment variable not set",
		},
		{
			name:          "MissingGroqAPIKey",
			env:           map[string]string{"SEARCH_PROVIDER": "groq"},
			expectedError: "GROQ_API_KEY environment variable not set",
		},
		{
			name:          "UnknownProvider",
			env:           map[string]string{"SEARCH_PROVIDER": "bing"},
			expectedError: `SEARCH_PROVIDER must be one of html, gemini, groq, none; got "bing"`,
		},
		{
			name:          "ThresholdNotANumber",
			env:           map[string]string{"MATCH_THRESHOLD": "high"},
			expectedError: `MATCH_THRESHOLD must be an integer, got "high"`,
		},
		{
			name:          "ThresholdOutOfRange",
			env:           map[string]string{"MATCH_THRESHOLD": "150"},
			expectedError: "MATCH_THRESHOLD must be between 1 and 100, got 150",
		},
		{
			name:          "BadCacheTTL",
			env:           map[string]string{"CACHE_TTL": "fifteen"},
			expectedError: `CACHE_TTL must be a duration like 15m, got "fifteen"`,
		},
		{
			name:          "NegativeTimeout",
			env:           map[string]string{"EXTERNAL_TIMEOUT": "-1s"},
			expectedError: `EXTERNAL_TIMEOUT must be positive, got "-1s"`,
		},
		{
			name:          "BadUserID",
			env:           map[string]string{"TELEGRAM_ALLOW_USER_ID": "abc"},
			expectedError: `TELEGRAM_ALLOW_USER_ID contains an invalid id "abc"`,
		},
	}

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				setEnv(k, v)
			}

			_, err := NewFromEnv()
			if err == nil {
				t.Fatalf("Expected an error, got nil")
			}
			if err.Error() != tc.expectedError {
				t.Errorf("Expected error '%s', got '%s'", tc.expectedError, err.Error())
			}
		})
	}
}

func TestValidateTelegram(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateTelegram(); err == nil || err.Error() != "TELEGRAM_BOT_TOKEN environment variable not set" {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg.TelegramBotToken = "token"
	if err := cfg.ValidateTelegram(); err == nil || err.Error() != "TELEGRAM_WEBHOOK_URL environment variable not set" {
		t.Errorf("Unexpected error: %v", err)
	}

	cfg.TelegramWebhookURL = "https://example.com/webhook"
	if err := cfg.ValidateTelegram(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}
