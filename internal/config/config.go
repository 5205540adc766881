package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	ReplySchedule string // cron expression, or "hourly"/"daily" shorthand
	DryRun        bool

	// Storage configuration. When StorageAccount is empty the bot falls
	// back to local files under LocalDataDir.
	StorageAccount   string
	StorageContainer string
	LocalDataDir     string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// API credentials
	TwitterBearerToken string
	PerplexityAPIKey   string

	Selection  SelectionConfig
	Reply      ReplyConfig
	RateLimits RateLimitConfig
}

// SelectionConfig controls the tweet selection algorithm. Blacklists are
// normalized once at load time (lowercase, no leading @) and the struct is
// treated as immutable afterwards.
type SelectionConfig struct {
	MaxTweetsPerRun        int
	MinEngagementThreshold int
	MaxTweetAgeHours       int
	ExcludeRetweets        bool
	ExcludeReplies         bool
	BlacklistedUsers       []string
	BlacklistedKeywords    []string
}

// ReplyConfig controls reply generation.
type ReplyConfig struct {
	BasePrompt     string
	MaxReplyLength int
	Temperature    float64
	Model          string
}

// RateLimitConfig holds per-API bucket capacities and circuit breaker settings.
type RateLimitConfig struct {
	TwitterReadPer15Min  int
	TwitterWritePer15Min int
	GenerationPerHour    int

	TwitterFailureThreshold    int
	TwitterRecoveryTimeout     time.Duration
	TwitterSuccessThreshold    int
	GenerationFailureThreshold int
	GenerationRecoveryTimeout  time.Duration
	GenerationSuccessThreshold int
}

const defaultBasePrompt = "write an impactful reply to the following so that it teaches something new and contrary to the status-quo views: {tweet_content}"

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Debug:         getBoolEnv("DEBUG", false),
		ReplySchedule: getEnv("REPLY_SCHEDULE", "hourly"),
		DryRun:        getBoolEnv("DRY_RUN", false),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "reply-runs"),
		LocalDataDir:     getEnv("LOCAL_DATA_DIR", "data"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		PerplexityAPIKey:   getEnv("PERPLEXITY_API_KEY", ""),

		Selection: SelectionConfig{
			MaxTweetsPerRun:        getIntEnv("MAX_TWEETS_PER_RUN", 5),
			MinEngagementThreshold: getIntEnv("MIN_ENGAGEMENT_THRESHOLD", 10),
			MaxTweetAgeHours:       getIntEnv("MAX_TWEET_AGE_HOURS", 4),
			ExcludeRetweets:        getBoolEnv("EXCLUDE_RETWEETS", true),
			ExcludeReplies:         getBoolEnv("EXCLUDE_REPLIES", true),
			BlacklistedUsers:       normalizeUsers(getSliceEnv("BLACKLISTED_USERS", nil)),
			BlacklistedKeywords:    normalizeKeywords(getSliceEnv("BLACKLISTED_KEYWORDS", nil)),
		},

		Reply: ReplyConfig{
			BasePrompt:     getEnv("REPLY_BASE_PROMPT", defaultBasePrompt),
			MaxReplyLength: getIntEnv("MAX_REPLY_LENGTH", 280),
			Temperature:    getFloatEnv("REPLY_TEMPERATURE", 0.7),
			Model:          getEnv("REPLY_MODEL", "llama-3.1-sonar-small-128k-online"),
		},

		RateLimits: RateLimitConfig{
			TwitterReadPer15Min:  getIntEnv("TWITTER_READ_PER_15MIN", 240),
			TwitterWritePer15Min: getIntEnv("TWITTER_WRITE_PER_15MIN", 240),
			GenerationPerHour:    getIntEnv("GENERATION_PER_HOUR", 480),

			TwitterFailureThreshold:    getIntEnv("TWITTER_FAILURE_THRESHOLD", 5),
			TwitterRecoveryTimeout:     time.Duration(getIntEnv("TWITTER_RECOVERY_TIMEOUT_SECONDS", 300)) * time.Second,
			TwitterSuccessThreshold:    getIntEnv("TWITTER_SUCCESS_THRESHOLD", 3),
			GenerationFailureThreshold: getIntEnv("GENERATION_FAILURE_THRESHOLD", 3),
			GenerationRecoveryTimeout:  time.Duration(getIntEnv("GENERATION_RECOVERY_TIMEOUT_SECONDS", 600)) * time.Second,
			GenerationSuccessThreshold: getIntEnv("GENERATION_SUCCESS_THRESHOLD", 2),
		},
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TwitterBearerToken == "" {
		return fmt.Errorf("TWITTER_BEARER_TOKEN is required")
	}

	if c.PerplexityAPIKey == "" {
		return fmt.Errorf("PERPLEXITY_API_KEY is required")
	}

	if c.Selection.MaxTweetsPerRun < 1 || c.Selection.MaxTweetsPerRun > 20 {
		return fmt.Errorf("MAX_TWEETS_PER_RUN must be between 1 and 20 to avoid rate limits")
	}

	if c.Selection.MinEngagementThreshold < 0 {
		return fmt.Errorf("MIN_ENGAGEMENT_THRESHOLD must be >= 0")
	}

	if c.Selection.MaxTweetAgeHours < 1 || c.Selection.MaxTweetAgeHours > 24 {
		return fmt.Errorf("MAX_TWEET_AGE_HOURS must be between 1 and 24 for relevance")
	}

	if c.RateLimits.TwitterReadPer15Min < 1 || c.RateLimits.TwitterReadPer15Min > 300 {
		return fmt.Errorf("TWITTER_READ_PER_15MIN must be between 1 and the API limit of 300")
	}

	if c.RateLimits.TwitterWritePer15Min < 1 || c.RateLimits.TwitterWritePer15Min > 300 {
		return fmt.Errorf("TWITTER_WRITE_PER_15MIN must be between 1 and the API limit of 300")
	}

	if c.RateLimits.GenerationPerHour < 1 || c.RateLimits.GenerationPerHour > 600 {
		return fmt.Errorf("GENERATION_PER_HOUR must be between 1 and the typical API limit of 600")
	}

	if !strings.Contains(c.Reply.BasePrompt, "{tweet_content}") {
		return fmt.Errorf("REPLY_BASE_PROMPT must contain the {tweet_content} placeholder")
	}

	if c.Reply.MaxReplyLength < 1 || c.Reply.MaxReplyLength > 280 {
		return fmt.Errorf("MAX_REPLY_LENGTH must be between 1 and 280")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// normalizeUsers lowercases usernames and strips any leading @.
func normalizeUsers(users []string) []string {
	var cleaned []string
	for _, u := range users {
		u = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
		if u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}

// normalizeKeywords lowercases keywords for case-insensitive matching.
func normalizeKeywords(keywords []string) []string {
	var cleaned []string
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			cleaned = append(cleaned, k)
		}
	}
	return cleaned
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
